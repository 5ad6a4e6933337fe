// Package wasmplugin loads trust-verified WASM tool plugins into a shared
// wazero runtime (spec.md §9 Open Question: plugins are hash-pinned and
// signature-checked before a single byte of module code runs; the host
// function ABI those modules call into is left to a future subsystem).
package wasmplugin

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/nlbuilder/agentd/internal/store"
	"github.com/nlbuilder/agentd/internal/trust"
)

// Loader verifies a plugin's pinned hash against its on-disk WASM file
// before instantiating it in a shared runtime. Every loaded module is
// tracked so Close can tear all of them down together.
type Loader struct {
	chain   *trust.Chain
	runtime wazero.Runtime

	mu      sync.Mutex
	loaded  map[string]wazero.CompiledModule
}

func NewLoader(ctx context.Context, chain *trust.Chain) (*Loader, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("wasmplugin: instantiate wasi: %w", err)
	}
	return &Loader{chain: chain, runtime: rt, loaded: make(map[string]wazero.CompiledModule)}, nil
}

// Verify checks p.WasmHash against the file at p.WasmPath, deleting it on
// mismatch (trust.Chain's standard response to a pinned-hash violation).
func (l *Loader) Verify(p store.Plugin) error {
	if err := l.chain.VerifyFile(p.WasmPath, p.WasmHash); err != nil {
		return fmt.Errorf("wasmplugin: %s failed hash verification: %w", p.Name, err)
	}
	return nil
}

// Compile verifies, then compiles p's WASM module into the shared runtime,
// caching the compiled module by plugin name. It does not instantiate the
// module or wire any host imports — that is the future plugin subsystem's
// job, per spec.md §9's Open Question resolution.
func (l *Loader) Compile(ctx context.Context, p store.Plugin) (wazero.CompiledModule, error) {
	if err := l.Verify(p); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if cm, ok := l.loaded[p.Name]; ok {
		l.mu.Unlock()
		return cm, nil
	}
	l.mu.Unlock()

	data, err := os.ReadFile(p.WasmPath)
	if err != nil {
		return nil, fmt.Errorf("wasmplugin: read %s: %w", p.WasmPath, err)
	}

	cm, err := l.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("wasmplugin: compile %s: %w", p.Name, err)
	}

	l.mu.Lock()
	l.loaded[p.Name] = cm
	l.mu.Unlock()
	return cm, nil
}

// Instantiate spins up one module instance with no host imports beyond
// WASI, for a liveness/smoke check ahead of wiring a real tool ABI.
func (l *Loader) Instantiate(ctx context.Context, p store.Plugin) error {
	cm, err := l.Compile(ctx, p)
	if err != nil {
		return err
	}
	mod, err := l.runtime.InstantiateModule(ctx, cm, wazero.NewModuleConfig().WithName(p.Name))
	if err != nil {
		return fmt.Errorf("wasmplugin: instantiate %s: %w", p.Name, err)
	}
	return mod.Close(ctx)
}

func (l *Loader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}
