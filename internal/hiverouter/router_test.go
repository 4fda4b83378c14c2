package hiverouter

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivedb/hivedb/internal/hiveerrors"
	"github.com/hivedb/hivedb/internal/hiveql"
	"github.com/hivedb/hivedb/internal/hivestore"
	"github.com/hivedb/hivedb/internal/hiveschema"
)

type harness struct {
	t    *testing.T
	ctx  context.Context
	r    *Router
	hive *hivestore.Handle
	dir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	r := New()

	hive, err := r.CreateHive(ctx, "sqlite://"+filepath.Join(dir, "hive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { hive.Engine.Dispose() })

	return &harness{t: t, ctx: ctx, r: r, hive: hive, dir: dir}
}

func (h *harness) directoryURI() string {
	return "sqlite://" + filepath.Join(h.dir, "directory.db")
}

func (h *harness) nodeURI(name string) string {
	return "sqlite://" + filepath.Join(h.dir, name+".db")
}

// TestSimpleRouting is scenario S1.
func TestSimpleRouting(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)

	node42URI := h.nodeURI("p42")
	_, err = h.r.CreateNode(h.ctx, h.hive, dimID, "node42", node42URI)
	require.NoError(t, err)

	eng, err := h.r.AssignNode(h.ctx, h.hive, "frob", 1)
	require.NoError(t, err)
	assert.Equal(t, node42URI, eng.URI())
	eng.Dispose()

	eng2, err := h.r.GetEngine(h.ctx, h.hive, "frob", 1)
	require.NoError(t, err)
	assert.Equal(t, node42URI, eng2.URI())
	eng2.Dispose()
}

// TestUnknownDimension is scenario S2.
func TestUnknownDimension(t *testing.T) {
	h := newHarness(t)

	_, err := h.r.GetEngine(h.ctx, h.hive, "frob", 123)
	require.Error(t, err)
	var want *hiveerrors.NoSuchDimensionError
	require.True(t, errors.As(err, &want))
	assert.Equal(t, "No such dimension: 'frob'", err.Error())
}

// TestUnknownID is scenario S3.
func TestUnknownID(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)
	_, err = h.r.CreateNode(h.ctx, h.hive, dimID, "node42", h.nodeURI("p42"))
	require.NoError(t, err)

	eng, err := h.r.AssignNode(h.ctx, h.hive, "frob", 1)
	require.NoError(t, err)
	eng.Dispose()

	_, err = h.r.GetEngine(h.ctx, h.hive, "frob", 2)
	require.Error(t, err)
	var want *hiveerrors.NoSuchIDError
	require.True(t, errors.As(err, &want))
	assert.Equal(t, "No such id: dimension 'frob', dimension_value 2", err.Error())
}

// TestVanishingNode is scenario S4.
func TestVanishingNode(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)
	nodeID, err := h.r.CreateNode(h.ctx, h.hive, dimID, "node42", h.nodeURI("p42"))
	require.NoError(t, err)

	eng, err := h.r.AssignNode(h.ctx, h.hive, "frob", 1)
	require.NoError(t, err)
	eng.Dispose()

	require.NoError(t, hivestore.DeleteNode(h.ctx, h.hive, nodeID))

	_, err = h.r.GetEngine(h.ctx, h.hive, "frob", 1)
	require.Error(t, err)
	var want *hiveerrors.NoSuchNodeError
	require.True(t, errors.As(err, &want))
	assert.Contains(t, err.Error(), "node_id 1")
}

// TestUnassignThenRelookup is scenario S5.
func TestUnassignThenRelookup(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)
	_, err = h.r.CreateNode(h.ctx, h.hive, dimID, "node42", h.nodeURI("p42"))
	require.NoError(t, err)

	eng, err := h.r.AssignNode(h.ctx, h.hive, "frob", 1)
	require.NoError(t, err)
	eng.Dispose()

	require.NoError(t, h.r.UnassignNode(h.ctx, h.hive, "frob", 1, "node42"))

	_, err = h.r.GetEngine(h.ctx, h.hive, "frob", 1)
	var want *hiveerrors.NoSuchIDError
	require.True(t, errors.As(err, &want))
}

// TestDuplicateDimension is scenario S6.
func TestDuplicateDimension(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	_, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)

	_, err = h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.Error(t, err)
	var want *hiveerrors.DimensionExistsError
	require.True(t, errors.As(err, &want))
	assert.Equal(t, "Dimension exists: 'frob'", err.Error())
}

// TestAssignNodeThenGetEngineMatches is property P2.
func TestAssignNodeThenGetEngineMatches(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)
	_, err = h.r.CreateNode(h.ctx, h.hive, dimID, "node42", h.nodeURI("p42"))
	require.NoError(t, err)

	assigned, err := h.r.AssignNode(h.ctx, h.hive, "frob", 7)
	require.NoError(t, err)
	wantURI := assigned.URI()
	assigned.Dispose()

	looked, err := h.r.GetEngine(h.ctx, h.hive, "frob", 7)
	require.NoError(t, err)
	defer looked.Dispose()
	assert.Equal(t, wantURI, looked.URI())
}

// TestUnassignThenGetEngineRaisesNoSuchID is property P3.
func TestUnassignThenGetEngineRaisesNoSuchID(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)
	_, err = h.r.CreateNode(h.ctx, h.hive, dimID, "node42", h.nodeURI("p42"))
	require.NoError(t, err)

	eng, err := h.r.AssignNode(h.ctx, h.hive, "frob", 3)
	require.NoError(t, err)
	eng.Dispose()

	require.NoError(t, h.r.UnassignNode(h.ctx, h.hive, "frob", 3, "node42"))

	_, err = h.r.GetEngine(h.ctx, h.hive, "frob", 3)
	var want *hiveerrors.NoSuchIDError
	require.True(t, errors.As(err, &want))
}

// TestCreatePrimaryIndexAndCreateHiveAreIdempotent is property P4.
func TestCreatePrimaryIndexAndCreateHiveAreIdempotent(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))

	h2, err := h.r.CreateHive(h.ctx, "sqlite://"+filepath.Join(h.dir, "hive.db"))
	require.NoError(t, err)
	h2.Engine.Dispose()
}

// TestAssignNodeNoNodes covers the closed error taxonomy when a
// dimension has no registered nodes to allocate onto.
func TestAssignNodeNoNodes(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	_, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)

	_, err = h.r.AssignNode(h.ctx, h.hive, "frob", 1)
	require.Error(t, err)
	var want *hiveerrors.NoNodesForDimensionError
	require.True(t, errors.As(err, &want))
	assert.Equal(t, "No nodes for dimension: 'frob'", err.Error())
}

// TestAssignNodeConcurrentConvergesOnOneRow is property P1: under
// concurrent AssignNode calls racing on the same (dimension, value),
// the directory must end up with exactly one row, and every caller
// must observe the same node.
func TestAssignNodeConcurrentConvergesOnOneRow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)
	for _, name := range []string{"node1", "node2", "node3"} {
		_, err := h.r.CreateNode(h.ctx, h.hive, dimID, name, h.nodeURI(name))
		require.NoError(t, err)
	}

	const goroutines = 20
	uris := make([]string, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			defer wg.Done()
			eng, err := h.r.AssignNode(h.ctx, h.hive, "frob", 99)
			errs[i] = err
			if err == nil {
				uris[i] = eng.URI()
				eng.Dispose()
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "goroutine %d", i)
	}
	first := uris[0]
	for i, got := range uris {
		assert.Equal(t, first, got, "goroutine %d resolved a different node", i)
	}

	dir, err := hiveql.Open(h.directoryURI())
	require.NoError(t, err)
	defer dir.Dispose()
	var rows int
	require.NoError(t, dir.QueryRow(h.ctx, `SELECT COUNT(*) FROM hive_primary_frob WHERE id = ?`, 99).Scan(&rows))
	assert.Equal(t, 1, rows, "directory must hold exactly one row for the raced value")
}

// TestUnassignNodeWrongNodeName covers the NoSuchNodeForDimensionValue
// branch of the UnassignNode contract.
func TestUnassignNodeWrongNodeName(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.r.CreatePrimaryIndex(h.ctx, h.directoryURI(), "frob", hiveschema.DBTypeInteger))
	dimID, err := h.r.CreateDimension(h.ctx, h.hive, "frob", h.directoryURI(), hiveschema.DBTypeInteger)
	require.NoError(t, err)
	_, err = h.r.CreateNode(h.ctx, h.hive, dimID, "node42", h.nodeURI("p42"))
	require.NoError(t, err)
	_, err = h.r.CreateNode(h.ctx, h.hive, dimID, "node43", h.nodeURI("p43"))
	require.NoError(t, err)

	eng, err := h.r.AssignNode(h.ctx, h.hive, "frob", 1)
	require.NoError(t, err)
	eng.Dispose()

	err = h.r.UnassignNode(h.ctx, h.hive, "frob", 1, "node43")
	require.Error(t, err)
	var want *hiveerrors.NoSuchNodeForDimensionValueError
	require.True(t, errors.As(err, &want))
}
