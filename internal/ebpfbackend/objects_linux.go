//go:build linux

package ebpfbackend

import (
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// DefaultObjectPath is where a packaged build installs the compiled
// tracexec.bpf.o produced from bpf/tracexec.bpf.c (by bpf2go or a plain
// clang+llvm-strip invocation run out of band; this module's own build
// never invokes clang). Callers that embed the object file a different
// way pass an explicit path to loadObjects instead.
const DefaultObjectPath = "/usr/local/share/tracexec/tracexec.bpf.o"

var removeMemlockOnce sync.Once

var collectionOpts = &ebpf.CollectionOptions{
	Programs: ebpf.ProgramOptions{
		LogSize: ebpf.DefaultVerifierLogSize,
	},
}

// bpfObjects holds the loaded programs and maps, named after the SEC()
// sections in bpf/tracexec.bpf.c.
type bpfObjects struct {
	ExecveProg       *ebpf.Program `ebpf:"handle_execve"`
	ExecveExitProg   *ebpf.Program `ebpf:"handle_execve_exit"`
	ExecveatProg     *ebpf.Program `ebpf:"handle_execveat"`
	ExecveatExitProg *ebpf.Program `ebpf:"handle_execveat_exit"`
	ForkProg         *ebpf.Program `ebpf:"handle_fork"`
	ExitProg         *ebpf.Program `ebpf:"handle_exit"`

	EventsMap       *ebpf.Map `ebpf:"events"`
	TgidClosureMap  *ebpf.Map `ebpf:"tgid_closure"`
	ConfigMap       *ebpf.Map `ebpf:"tracexec_config"`
	PendingExecsMap *ebpf.Map `ebpf:"pending_execs"`
	ChunkScratchMap *ebpf.Map `ebpf:"chunk_scratch"`
	PathScratchMap  *ebpf.Map `ebpf:"path_scratch_map"`

	closeLock sync.Mutex
	closed    bool
}

var errObjectsClosed = xerrors.New("ebpf objects are closed")

// loadObjects reads the compiled collection from path and assigns its
// programs/maps into a bpfObjects.
func loadObjects(path string) (*bpfObjects, error) {
	var rlimitErr error
	removeMemlockOnce.Do(func() { rlimitErr = rlimit.RemoveMemlock() })
	if rlimitErr != nil {
		return nil, xerrors.Errorf("remove memlock rlimit: %w", rlimitErr)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open bpf object %q: %w", path, err)
	}
	defer f.Close()

	spec, err := ebpf.LoadCollectionSpecFromReader(f)
	if err != nil {
		return nil, xerrors.Errorf("parse bpf collection %q: %w", path, err)
	}

	objs := &bpfObjects{}
	if err := spec.LoadAndAssign(objs, collectionOpts); err != nil {
		return nil, xerrors.Errorf("load and assign bpf objects: %w", err)
	}

	stack := debug.Stack()
	runtime.SetFinalizer(objs, func(o *bpfObjects) {
		err := o.Close()
		if xerrors.Is(err, errObjectsClosed) {
			return
		}
		log.Printf("ebpfbackend: objects were finalized but never closed, created at: %s", stack)
		if err != nil {
			log.Printf("ebpfbackend: closing finalized objects failed: %v", err)
		}
	})

	return objs, nil
}

func (o *bpfObjects) Close() error {
	o.closeLock.Lock()
	defer o.closeLock.Unlock()
	if o.closed {
		return errObjectsClosed
	}
	o.closed = true
	runtime.SetFinalizer(o, nil)

	var merr error
	closeProgram := func(name string, p *ebpf.Program) {
		if p == nil {
			return
		}
		if err := p.Close(); err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("close bpf program %q: %w", name, err))
		}
	}
	closeMap := func(name string, m *ebpf.Map) {
		if m == nil {
			return
		}
		if err := m.Close(); err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("close bpf map %q: %w", name, err))
		}
	}
	closePrograms := map[string]*ebpf.Program{
		"handle_execve":        o.ExecveProg,
		"handle_execve_exit":   o.ExecveExitProg,
		"handle_execveat":      o.ExecveatProg,
		"handle_execveat_exit": o.ExecveatExitProg,
		"handle_fork":          o.ForkProg,
		"handle_exit":          o.ExitProg,
	}
	for name, p := range closePrograms {
		closeProgram(name, p)
	}
	closeMaps := map[string]*ebpf.Map{
		"events":           o.EventsMap,
		"tgid_closure":     o.TgidClosureMap,
		"tracexec_config":  o.ConfigMap,
		"pending_execs":    o.PendingExecsMap,
		"chunk_scratch":    o.ChunkScratchMap,
		"path_scratch_map": o.PathScratchMap,
	}
	for name, m := range closeMaps {
		closeMap(name, m)
	}
	return merr
}
