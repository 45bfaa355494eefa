package vaultd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stablevault/config"
	"stablevault/native/vault"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage = config.Storage{Backend: "bolt", Path: filepath.Join(cfg.DataDir, "state.db")}
	cfg.EventArchive = ":memory:"
	cfg.Allocations = []config.Allocation{{
		Account: config.DeriveAccount("holder").String(),
		Asset:   "VCOL",
		Amount:  "3",
	}}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNodeSeedsAllocationsOnce(t *testing.T) {
	cfg := testConfig(t)
	holder := config.DeriveAccount("holder")

	node, err := New(cfg, nil)
	require.NoError(t, err)
	balance, err := node.State().BalanceOf("VCOL", holder)
	require.NoError(t, err)
	require.Equal(t, vault.MustParseUnits("3"), balance)
	require.NoError(t, node.Close())

	reopened, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	balance, err = reopened.State().BalanceOf("VCOL", holder)
	require.NoError(t, err)
	require.Equal(t, vault.MustParseUnits("3"), balance)
}

func TestNodePauseFlagBlocksMint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paused = true
	node, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	holder := config.DeriveAccount("holder")
	_, err = node.Engine().Mint(holder, holder, vault.MustParseUnits("1"))
	require.Equal(t, vault.KindPaused, vault.KindOf(err))

	node.Pauses().Set(false)
	result, err := node.Engine().Mint(holder, holder, vault.MustParseUnits("1"))
	require.NoError(t, err)
	require.Equal(t, vault.MustParseUnits("416.6666666666666666"), result.Minted)
}

func TestNodeServesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	node, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.Serve(ctx, listener) }()

	url := fmt.Sprintf("http://%s/v1/params", listener.Addr().String())
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &params))
	require.EqualValues(t, 120, params["requiredRatioPercent"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not shut down")
	}
}
