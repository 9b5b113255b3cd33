package clonality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

// networkCloneCap bounds the clone nodes in the network view for size
// control; the cap applies to the ranked public-clone list.
const networkCloneCap = 50

// Heatmap is a clone × patient presence/absence view with a parallel
// per-cell sequence-frequency matrix. Patients are sorted lexicographically.
type Heatmap struct {
	Clones      []string `json:"clones"`
	Patients    []string `json:"patients"`
	Matrix      [][]int  `json:"matrix"`
	Frequencies [][]int  `json:"frequencies"`
}

// ChordLink weights an unordered patient pair by the number of public clones
// both appear in.
type ChordLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  int    `json:"value"`
}

// Chord is the patient co-occurrence view.
type Chord struct {
	Nodes []string    `json:"nodes"`
	Links []ChordLink `json:"links"`
}

// UpsetIntersection counts the public clones restricted to exactly one
// observed patient subset.
type UpsetIntersection struct {
	Sets []string `json:"sets"`
	Size int      `json:"size"`
}

// Upset carries per-patient totals plus observed-subset intersections,
// sorted by descending size.
type Upset struct {
	Sets          map[string]int      `json:"sets"`
	Intersections []UpsetIntersection `json:"intersections"`
}

// NetworkNode is either a patient or a clone node.
type NetworkNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// NetworkEdge links a clone node to a patient it appears in, weighted by the
// clone's sequence count.
type NetworkEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Count  int    `json:"count"`
}

// Network is the bipartite clone/patient graph view.
type Network struct {
	Nodes []NetworkNode `json:"nodes"`
	Edges []NetworkEdge `json:"edges"`
}

// Visualizations bundles the four derived views. None of them feed back into
// clustering.
type Visualizations struct {
	Heatmap Heatmap `json:"heatmap"`
	Chord   Chord   `json:"chord"`
	Upset   Upset   `json:"upset"`
	Network Network `json:"network"`
}

// BuildVisualizations derives the four views from a ranked public-clone list.
func BuildVisualizations(publics []domain.PublicClone, allPatients []string) Visualizations {
	viz := Visualizations{
		Heatmap: Heatmap{Clones: []string{}, Patients: []string{}, Matrix: [][]int{}, Frequencies: [][]int{}},
		Chord:   Chord{Nodes: []string{}, Links: []ChordLink{}},
		Upset:   Upset{Sets: map[string]int{}, Intersections: []UpsetIntersection{}},
		Network: Network{Nodes: []NetworkNode{}, Edges: []NetworkEdge{}},
	}
	if len(publics) == 0 {
		return viz
	}

	patients := append([]string(nil), allPatients...)
	sort.Strings(patients)

	viz.Heatmap = buildHeatmap(publics, patients)
	viz.Chord = buildChord(publics, patients)
	viz.Upset = buildUpset(publics, patients)
	viz.Network = buildNetwork(publics, patients)
	return viz
}

func buildHeatmap(publics []domain.PublicClone, patients []string) Heatmap {
	hm := Heatmap{Patients: patients}

	for _, pc := range publics {
		hm.Clones = append(hm.Clones, truncateLabel(pc.CDR3AA, 15))

		memberFiles := make(map[string]int, len(pc.Members))
		for _, m := range pc.Members {
			memberFiles[domain.ParseSequenceKey(m).SourceFile]++
		}

		presence := make([]int, len(patients))
		freq := make([]int, len(patients))
		for i, p := range patients {
			if n := memberFiles[p]; n > 0 {
				presence[i] = 1
				freq[i] = n
			}
		}
		hm.Matrix = append(hm.Matrix, presence)
		hm.Frequencies = append(hm.Frequencies, freq)
	}
	return hm
}

func buildChord(publics []domain.PublicClone, patients []string) Chord {
	type pair struct{ a, b string }
	weights := make(map[pair]int)

	for _, pc := range publics {
		for i, p1 := range pc.Patients {
			for _, p2 := range pc.Patients[i+1:] {
				a, b := p1, p2
				if a > b {
					a, b = b, a
				}
				weights[pair{a, b}]++
			}
		}
	}

	links := make([]ChordLink, 0, len(weights))
	for k, v := range weights {
		links = append(links, ChordLink{Source: k.a, Target: k.b, Value: v})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Source != links[j].Source {
			return links[i].Source < links[j].Source
		}
		return links[i].Target < links[j].Target
	})

	return Chord{Nodes: patients, Links: links}
}

func buildUpset(publics []domain.PublicClone, patients []string) Upset {
	up := Upset{Sets: make(map[string]int, len(patients))}

	for _, p := range patients {
		up.Sets[p] = 0
	}
	subsetCounts := make(map[string]int)
	subsetMembers := make(map[string][]string)

	for _, pc := range publics {
		for _, p := range pc.Patients {
			up.Sets[p]++
		}
		// Patients is already sorted, so the joined form is canonical.
		key := strings.Join(pc.Patients, "\x00")
		subsetCounts[key]++
		subsetMembers[key] = pc.Patients
	}

	for key, n := range subsetCounts {
		up.Intersections = append(up.Intersections, UpsetIntersection{
			Sets: subsetMembers[key],
			Size: n,
		})
	}
	sort.Slice(up.Intersections, func(i, j int) bool {
		if up.Intersections[i].Size != up.Intersections[j].Size {
			return up.Intersections[i].Size > up.Intersections[j].Size
		}
		return strings.Join(up.Intersections[i].Sets, ",") < strings.Join(up.Intersections[j].Sets, ",")
	})
	return up
}

func buildNetwork(publics []domain.PublicClone, patients []string) Network {
	var nw Network

	for _, p := range patients {
		nw.Nodes = append(nw.Nodes, NetworkNode{
			ID:    "patient_" + p,
			Type:  "patient",
			Label: p,
		})
	}

	limit := len(publics)
	if limit > networkCloneCap {
		limit = networkCloneCap
	}
	for idx, pc := range publics[:limit] {
		cloneID := fmt.Sprintf("clone_%d", idx)
		nw.Nodes = append(nw.Nodes, NetworkNode{
			ID:    cloneID,
			Type:  "clone",
			Label: truncateLabel(pc.CDR3AA, 10),
		})
		for _, p := range pc.Patients {
			nw.Edges = append(nw.Edges, NetworkEdge{
				Source: cloneID,
				Target: "patient_" + p,
				Count:  pc.SequenceCount,
			})
		}
	}
	return nw
}

func truncateLabel(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r) + "..."
}
