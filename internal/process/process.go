package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	// TailSize is how many recent output lines a Process retains.
	TailSize = 200
	// WaitDelay bounds how long pipes may stay open after the child exits,
	// e.g. when a grandchild inherited them.
	WaitDelay = 2 * time.Second

	maxLineSize = 1024 * 1024
)

// Process is a running child whose stdout and stderr are piped, split into
// lines and fanned out to subscribers. It is safe for concurrent use.
type Process struct {
	name      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	mu       sync.Mutex
	subs     map[int]*subscriber
	nextSub  int
	tail     []string
	exitCode int
	exitErr  error

	scanWG sync.WaitGroup
	done   chan struct{}
}

type subscriber struct {
	ch   chan string
	quit chan struct{}
	once sync.Once
}

// Start launches the child described by spec. A failure to create the process
// (missing executable, bad working directory) is returned as is, wrapped with
// the command line.
func Start(spec Spec) (*Process, error) {
	cmd, err := spec.BuildCommand()
	if err != nil {
		return nil, err
	}
	cmd.WaitDelay = WaitDelay

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	var stdout io.Writer = outW
	var stderr io.Writer = errW
	var logs []io.Closer
	if spec.Log.Enabled() {
		lo, le, err := spec.Log.Writers(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("open output logs for %s: %w", spec.Name, err)
		}
		if lo != nil {
			stdout = io.MultiWriter(stdout, lo)
			logs = append(logs, lo)
		}
		if le != nil {
			stderr = io.MultiWriter(stderr, le)
			logs = append(logs, le)
		}
	}
	if spec.Stderr != nil {
		stderr = io.MultiWriter(stderr, spec.Stderr)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = outW.Close()
		_ = errW.Close()
		closeAll(logs)
		return nil, fmt.Errorf("start %q: %w", spec.CommandLine(), err)
	}

	p := &Process{
		name:      spec.Name,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		subs:      make(map[int]*subscriber),
		exitCode:  -1,
		done:      make(chan struct{}),
	}
	p.scanWG.Add(2)
	go p.scan(outR)
	go p.scan(errR)
	go p.wait(outW, errW, logs)
	return p, nil
}

func (p *Process) Name() string         { return p.name }
func (p *Process) PID() int             { return p.pid }
func (p *Process) StartedAt() time.Time { return p.startedAt }

// Done is closed once the child has exited and every output line has been
// handed to the subscribers that were active at the time.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode returns the exit status, or -1 while running or when the child was
// terminated by a signal.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// ExitErr returns the error reported by Wait, nil for a clean exit.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Exited reports whether Done has been closed.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Signal sends sig to the child's process group.
func (p *Process) Signal(sig os.Signal) error {
	if p.Exited() {
		return os.ErrProcessDone
	}
	return signalGroup(p.cmd.Process, sig)
}

// Subscribe returns the retained tail plus a channel carrying every line
// produced afterwards. No line is both in the backlog and on the channel.
// The channel is unbuffered and never closed; pair it with Done. cancel must
// be called to release the subscription and is idempotent.
func (p *Process) Subscribe() (backlog []string, lines <-chan string, cancel func()) {
	s := &subscriber{ch: make(chan string), quit: make(chan struct{})}
	p.mu.Lock()
	backlog = append([]string(nil), p.tail...)
	id := p.nextSub
	p.nextSub++
	p.subs[id] = s
	p.mu.Unlock()

	cancel = func() {
		s.once.Do(func() {
			close(s.quit)
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
	return backlog, s.ch, cancel
}

// Tail returns up to n of the most recent output lines, capped at TailSize.
func (p *Process) Tail(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 || n > TailSize {
		n = TailSize
	}
	if n > len(p.tail) {
		n = len(p.tail)
	}
	return append([]string(nil), p.tail[len(p.tail)-n:]...)
}

func (p *Process) scan(r *io.PipeReader) {
	defer p.scanWG.Done()
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	for s.Scan() {
		p.publish(s.Text())
	}
	// keep the writer side unblocked if scanning stopped on an oversized line
	_, _ = io.Copy(io.Discard, r)
}

func (p *Process) publish(line string) {
	p.mu.Lock()
	p.tail = append(p.tail, line)
	if len(p.tail) > 2*TailSize {
		p.tail = append([]string(nil), p.tail[len(p.tail)-TailSize:]...)
	}
	subs := make([]*subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- line:
		case <-s.quit:
		}
	}
}

func (p *Process) wait(outW, errW *io.PipeWriter, logs []io.Closer) {
	err := p.cmd.Wait()
	_ = outW.Close()
	_ = errW.Close()
	p.scanWG.Wait()
	closeAll(logs)

	code := -1
	var ee *exec.ExitError
	switch {
	case err == nil:
		code = 0
	case errors.As(err, &ee):
		code = ee.ExitCode()
	case p.cmd.ProcessState != nil:
		code = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Lock()
	p.exitCode = code
	p.exitErr = err
	if len(p.tail) > TailSize {
		p.tail = append([]string(nil), p.tail[len(p.tail)-TailSize:]...)
	}
	p.mu.Unlock()
	close(p.done)
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		_ = c.Close()
	}
}
