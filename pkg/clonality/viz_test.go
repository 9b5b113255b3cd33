package clonality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

func vizFixture() ([]domain.PublicClone, []string) {
	p := ParamsForMode(domain.ModeLenient, nil, nil)
	report := BuildReport(publicFixture(), p, 10)
	return report.PublicClones, []string{"p1.fasta", "p2.fasta", "p3.fasta"}
}

func TestBuildHeatmap(t *testing.T) {
	publics, patients := vizFixture()
	hm := buildHeatmap(publics, patients)

	require.Len(t, hm.Clones, 2)
	assert.Equal(t, patients, hm.Patients)

	// CDR3 labels truncate to 15 runes plus the ellipsis marker.
	assert.Equal(t, "CASSLGQGNYGYTF...", hm.Clones[0])

	// Clone A: two sequences from p1, one each from p2 and p3.
	assert.Equal(t, []int{1, 1, 1}, hm.Matrix[0])
	assert.Equal(t, []int{2, 1, 1}, hm.Frequencies[0])

	// Clone B: absent from p3.
	assert.Equal(t, []int{1, 1, 0}, hm.Matrix[1])
	assert.Equal(t, []int{1, 1, 0}, hm.Frequencies[1])
}

func TestBuildChord(t *testing.T) {
	publics, patients := vizFixture()
	ch := buildChord(publics, patients)

	assert.Equal(t, patients, ch.Nodes)
	// Clone A contributes all three pairs, clone B adds one more to p1/p2.
	require.Len(t, ch.Links, 3)
	assert.Equal(t, ChordLink{Source: "p1.fasta", Target: "p2.fasta", Value: 2}, ch.Links[0])
	assert.Equal(t, ChordLink{Source: "p1.fasta", Target: "p3.fasta", Value: 1}, ch.Links[1])
	assert.Equal(t, ChordLink{Source: "p2.fasta", Target: "p3.fasta", Value: 1}, ch.Links[2])
}

func TestBuildUpset(t *testing.T) {
	publics, patients := vizFixture()
	up := buildUpset(publics, patients)

	assert.Equal(t, map[string]int{
		"p1.fasta": 2,
		"p2.fasta": 2,
		"p3.fasta": 1,
	}, up.Sets)

	require.Len(t, up.Intersections, 2)
	// Both subsets occur once; the tie breaks on the joined patient names.
	assert.Equal(t, []string{"p1.fasta", "p2.fasta"}, up.Intersections[0].Sets)
	assert.Equal(t, []string{"p1.fasta", "p2.fasta", "p3.fasta"}, up.Intersections[1].Sets)
	assert.Equal(t, 1, up.Intersections[0].Size)
	assert.Equal(t, 1, up.Intersections[1].Size)
}

func TestBuildNetwork(t *testing.T) {
	publics, patients := vizFixture()
	nw := buildNetwork(publics, patients)

	require.Len(t, nw.Nodes, 5)
	assert.Equal(t, NetworkNode{ID: "patient_p1.fasta", Type: "patient", Label: "p1.fasta"}, nw.Nodes[0])

	clone0 := nw.Nodes[3]
	assert.Equal(t, "clone_0", clone0.ID)
	assert.Equal(t, "clone", clone0.Type)
	// Clone labels truncate to 10 runes plus the marker.
	assert.Equal(t, "CASSLGQGNY...", clone0.Label)

	// One edge per (clone, patient), weighted by the clone's sequence count.
	require.Len(t, nw.Edges, 5)
	assert.Equal(t, NetworkEdge{Source: "clone_0", Target: "patient_p1.fasta", Count: 4}, nw.Edges[0])
}

func TestBuildNetwork_CloneCap(t *testing.T) {
	var publics []domain.PublicClone
	for i := 0; i < networkCloneCap+10; i++ {
		publics = append(publics, domain.PublicClone{
			Clone: domain.Clone{
				ID:     fmt.Sprintf("cluster_%d", i),
				CDR3AA: "CASSLGQGNYGYTF",
			},
			SequenceCount: 2,
			PatientCount:  2,
			Patients:      []string{"p1.fasta", "p2.fasta"},
		})
	}
	nw := buildNetwork(publics, []string{"p1.fasta", "p2.fasta"})

	cloneNodes := 0
	for _, n := range nw.Nodes {
		if n.Type == "clone" {
			cloneNodes++
		}
	}
	assert.Equal(t, networkCloneCap, cloneNodes)
	assert.Len(t, nw.Edges, networkCloneCap*2)
}

func TestBuildVisualizations_Empty(t *testing.T) {
	viz := BuildVisualizations(nil, nil)
	assert.NotNil(t, viz.Heatmap.Matrix)
	assert.NotNil(t, viz.Upset.Sets)
	assert.Empty(t, viz.Network.Nodes)
}
