package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/testutil"
)

const testVaultID = "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/rg/providers/Microsoft.KeyVault/vaults/v1"

// reply is one scripted HTTP response.
type reply struct {
	status int
	body   string
}

func ok(body string) reply { return reply{status: http.StatusOK, body: body} }

func vault(state string) reply {
	return ok(fmt.Sprintf(`{"id": %q, "name": "v1", "properties": {"provisioningState": %q}}`, testVaultID, state))
}

// fakeARM serves scripted responses per HTTP method, or per method and
// path when onPath scripted one. The last reply of a script repeats once it
// is exhausted.
type fakeARM struct {
	mu       sync.Mutex
	scripts  map[string][]reply
	calls    map[string]int
	paths    []string
	lastBody []byte
}

func newFakeARM() *fakeARM {
	return &fakeARM{scripts: map[string][]reply{}, calls: map[string]int{}}
}

func (f *fakeARM) on(method string, replies ...reply) *fakeARM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[method] = replies
	return f
}

func (f *fakeARM) onPath(method, path string, replies ...reply) *fakeARM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[method+" "+path] = replies
	return f
}

func (f *fakeARM) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeARM) body() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeARM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paths = append(f.paths, r.URL.Path)
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			f.lastBody = data
		}
	}

	key := r.Method + " " + r.URL.Path
	if _, scripted := f.scripts[key]; !scripted {
		key = r.Method
	}
	script := f.scripts[key]
	if len(script) == 0 {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	i := f.calls[key]
	f.calls[key]++
	if key != r.Method {
		f.calls[r.Method]++
	}
	if i >= len(script) {
		i = len(script) - 1
	}
	rep := script[i]

	w.Header().Set("Content-Type", "application/json")
	if rep.status == http.StatusAccepted {
		w.Header().Set("Azure-AsyncOperation", "https://management.example/operations/1")
	}
	w.WriteHeader(rep.status)
	if rep.body != "" {
		_, _ = io.WriteString(w, rep.body)
	}
}

// cliEnv runs the CLI against a fakeARM server with a journal in a
// temporary directory, a fake clock and fixed ids.
type cliEnv struct {
	t      *testing.T
	fake   *fakeARM
	config string
	clock  *testutil.FakeClock
	ids    *engine.FixedGenerator
}

func newCLIEnv(t *testing.T, fake *fakeARM, ids ...string) *cliEnv {
	t.Helper()
	return newCLIEnvWith(t, fake, nil, ids...)
}

// newCLIEnvWith is newCLIEnv with a hook to edit the configuration
// document before it is written.
func newCLIEnvWith(t *testing.T, fake *fakeARM, edit func(cfg map[string]any), ids ...string) *cliEnv {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := map[string]any{
		"endpoint": srv.URL,
		"database": filepath.Join(dir, "journal.db"),
		"auth":     "none",
		"wait": map[string]any{
			"timeout":      60,
			"interval":     5,
			"max_interval": 10,
			"multiplier":   2,
			"jitter":       0,
			"max_retries":  -1,
		},
	}
	if edit != nil {
		edit(cfg)
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "azwait.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return &cliEnv{
		t:      t,
		fake:   fake,
		config: path,
		clock:  testutil.NewFakeClock(time.Time{}),
		ids:    engine.NewFixedGenerator(ids...),
	}
}

// run executes one CLI invocation and returns stdout, stderr and the error.
func (e *cliEnv) run(args ...string) (string, string, error) {
	e.t.Helper()

	opts := &RootOptions{Clock: e.clock, IDs: e.ids}
	cmd := NewRootCommandWithOptions(opts)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
