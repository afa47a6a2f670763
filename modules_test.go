package lyng

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportSourcePackage(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterSource("acme.lib", `
fn twice(x) { x * 2 }
val answer = 42
`))
	v, err := in.Eval(context.Background(), "<t>", "import acme.lib\ntwice(answer)")
	require.NoError(t, err)
	wantInt(t, v, 84)
}

func TestImportIsMemoized(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterSource("acme.state", "var hits = 0"))

	ctx := context.Background()
	m1, err := in.Registry().Import(ctx, "acme.state")
	require.NoError(t, err)
	m2, err := in.Registry().Import(ctx, "acme.state")
	require.NoError(t, err)
	assert.Same(t, m1, m2, "importers must share the identical module scope")
}

func TestModuleStateIsSharedAcrossImporters(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterSource("acme.counter", `
var n = 0
fn bump() {
    n += 1
    n
}
`))
	ctx := context.Background()
	_, err := in.Eval(ctx, "<a>", "import acme.counter\nbump()")
	require.NoError(t, err)
	v, err := in.Eval(ctx, "<b>", "import acme.counter\nbump()")
	require.NoError(t, err)
	wantInt(t, v, 2)
}

func TestFailedBuildIsNeverCached(t *testing.T) {
	in := NewInterp()
	var attempts atomic.Int64
	require.NoError(t, in.Registry().RegisterNative("acme.flaky", func(_ *Runner, m *ModuleScope) error {
		if attempts.Add(1) == 1 {
			return errors.New("backing store unavailable")
		}
		m.scope.Define("x", IntOf(1), false)
		return nil
	}))

	_, err := in.Registry().Import(context.Background(), "acme.flaky")
	require.Error(t, err)

	// a failure leaves the package unloaded; the next import retries
	m, err := in.Registry().Import(context.Background(), "acme.flaky")
	require.NoError(t, err)
	v, ok := m.Get("x")
	require.True(t, ok)
	wantInt(t, v, 1)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestReRegistrationIsRejected(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterSource("acme.one", "val a = 1"))
	require.Error(t, in.Registry().RegisterSource("acme.one", "val a = 2"))
	require.Error(t, in.Registry().RegisterNative("acme.one", func(_ *Runner, _ *ModuleScope) error {
		return nil
	}))

	require.NoError(t, in.Registry().RegisterNative("acme.two", func(_ *Runner, _ *ModuleScope) error {
		return nil
	}))
	require.Error(t, in.Registry().RegisterNative("acme.two", func(_ *Runner, _ *ModuleScope) error {
		return nil
	}))
}

func TestSourceFragmentsMergeIntoOnePackage(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().AppendSource("acme.split", "val base = 10"))
	// later fragments see earlier declarations
	require.NoError(t, in.Registry().AppendSource("acme.split", "fn doubled() { base * 2 }"))

	v, err := in.Eval(context.Background(), "<t>", "import acme.split\nbase + doubled()")
	require.NoError(t, err)
	wantInt(t, v, 30)

	// the merged package is one scope; loading freezes it
	require.Error(t, in.Registry().AppendSource("acme.split", "val more = 1"))
}

func TestNativePackageRefusesSourceFragments(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterNative("acme.nat", func(_ *Runner, m *ModuleScope) error {
		m.scope.Define("n", IntOf(1), false)
		return nil
	}))
	require.Error(t, in.Registry().AppendSource("acme.nat", "val x = 1"))
}

func TestUnregisteredImportFails(t *testing.T) {
	in := NewInterp()
	_, err := in.Eval(context.Background(), "<t>", "import no.such.pkg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestCircularImportIsDetected(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterSource("acme.a", "import acme.b\nval va = 1"))
	require.NoError(t, in.Registry().RegisterSource("acme.b", "import acme.a\nval vb = 2"))

	_, err := in.Registry().Import(context.Background(), "acme.a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular import")
}

func TestTransitiveExports(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterSource("acme.base", "val base = 10"))
	require.NoError(t, in.Registry().RegisterSource("acme.mid", "import acme.base\nval mid = base + 1"))

	v, err := in.Eval(context.Background(), "<t>", "import acme.mid\nmid + base")
	require.NoError(t, err)
	wantInt(t, v, 21)
}

func TestBuilderRunsOnceUnderConcurrentImports(t *testing.T) {
	in := NewInterp()
	var builds atomic.Int64
	require.NoError(t, in.Registry().RegisterNative("acme.heavy", func(_ *Runner, m *ModuleScope) error {
		builds.Add(1)
		m.scope.Define("ready", BoolOf(true), false)
		return nil
	}))

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	mods := make([]*ModuleScope, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mods[i], errs[i] = in.Registry().Import(context.Background(), "acme.heavy")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, mods[0], mods[i])
	}
	assert.Equal(t, int64(1), builds.Load(), "racing imports must build at most once")
}

func TestImportPolicyDenial(t *testing.T) {
	in := NewInterp(WithPolicy(DenyAllPolicy{}))
	_, err := in.Eval(context.Background(), "<t>", "import lyng.math")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestManifestPolicy(t *testing.T) {
	policy, err := ParseManifest([]byte(`
imports:
  - lyng.math
  - acme.*
symbols:
  lyng.math: [sqrt]
capabilities:
  lyng.fs: [read]
`))
	require.NoError(t, err)

	assert.NoError(t, policy.CheckImport("lyng.math"))
	assert.NoError(t, policy.CheckImport("acme.util.io"))
	assert.Error(t, policy.CheckImport("lyng.time"))

	assert.NoError(t, policy.CheckImportSymbol("lyng.math", "sqrt"))
	assert.Error(t, policy.CheckImportSymbol("lyng.math", "pow"))
	assert.NoError(t, policy.CheckImportSymbol("acme.util", "anything"),
		"packages without a symbols entry export freely")

	assert.NoError(t, policy.CheckCapability("lyng.fs", "read"))
	assert.Error(t, policy.CheckCapability("lyng.fs", "write"))
	assert.Error(t, policy.CheckCapability("lyng.process", "env"))
}

func TestSelectiveImportHonorsSymbolPolicy(t *testing.T) {
	policy, err := ParseManifest([]byte(`
imports: ["lyng.math"]
symbols:
  lyng.math: [sqrt]
`))
	require.NoError(t, err)
	in := NewInterp(WithPolicy(policy))

	v, err := in.Eval(context.Background(), "<t>", "import lyng.math { sqrt }\nsqrt(9.0).toInt()")
	require.NoError(t, err)
	wantInt(t, v, 3)

	_, err = in.Eval(context.Background(), "<t>", "import lyng.math { pow }\npow(2.0, 3.0)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestGuardedHostPackage(t *testing.T) {
	policy, err := ParseManifest([]byte(`
imports: ["lyng.*"]
capabilities: {}
`))
	require.NoError(t, err)

	in := NewInterp(WithPolicy(policy))
	require.NoError(t, RegisterHostPackages(in))

	_, err = in.Eval(context.Background(), "<t>", `import lyng.fs`+"\n"+`readText("/etc/hostname")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDeniedException")
}

func TestModuleMemberAccess(t *testing.T) {
	in := NewInterp()
	require.NoError(t, in.Registry().RegisterSource("acme.geo", "val origin = [0, 0]"))
	m, err := in.Registry().Import(context.Background(), "acme.geo")
	require.NoError(t, err)

	v, ok := m.Get("origin")
	require.True(t, ok)
	assert.Equal(t, KList, v.Kind)
	_, ok = m.Get("missing")
	assert.False(t, ok)
}
