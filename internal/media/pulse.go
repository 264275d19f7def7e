package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandFunc runs a command and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output() //nolint:gosec
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// PulseSource is one row of `pactl list short sources`.
type PulseSource struct {
	Index      string
	Name       string
	Driver     string
	SampleSpec string
	State      string
}

// Monitor reports whether the source is a sink monitor, which is how tab
// (application output) audio is exposed.
func (s PulseSource) Monitor() bool {
	return strings.HasSuffix(s.Name, ".monitor")
}

// ParseSources parses the tab-separated output of `pactl list short sources`.
func ParseSources(output string) []PulseSource {
	var sources []PulseSource
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			fields = strings.Fields(line)
		}
		if len(fields) < 2 {
			continue
		}
		src := PulseSource{Index: fields[0], Name: fields[1]}
		if len(fields) > 2 {
			src.Driver = fields[2]
		}
		if len(fields) > 3 {
			src.SampleSpec = fields[3]
		}
		if len(fields) > 4 {
			src.State = fields[4]
		}
		sources = append(sources, src)
	}
	return sources
}

// PulseResolver resolves handles against the sources pactl reports.
type PulseResolver struct {
	Binary string
	// MicSource is a source name or "default".
	MicSource string
	Run       CommandFunc
}

// NewPulseResolver returns a resolver that shells out to pactl.
func NewPulseResolver(binary, micSource string) *PulseResolver {
	return &PulseResolver{Binary: binary, MicSource: micSource, Run: execOutput}
}

func (r *PulseResolver) run(ctx context.Context, args ...string) (string, error) {
	runner := r.Run
	if runner == nil {
		runner = execOutput
	}
	binary := strings.TrimSpace(r.Binary)
	if binary == "" {
		binary = "pactl"
	}
	out, err := runner(ctx, binary, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Sources lists every pulse source.
func (r *PulseResolver) Sources(ctx context.Context) ([]PulseSource, error) {
	out, err := r.run(ctx, "list", "short", "sources")
	if err != nil {
		return nil, fmt.Errorf("list pulse sources: %w", err)
	}
	return ParseSources(out), nil
}

// ResolveTab implements Resolver. An empty tab selects the monitor of the
// default sink, which carries whatever the browser is playing.
func (r *PulseResolver) ResolveTab(ctx context.Context, tab string) (Handle, error) {
	name := strings.TrimSpace(tab)
	if name == "" {
		sink, err := r.run(ctx, "get-default-sink")
		if err != nil {
			return Handle{}, fmt.Errorf("%w: default sink: %v", ErrSourceUnavailable, err)
		}
		if sink == "" {
			return Handle{}, fmt.Errorf("%w: no default sink", ErrSourceUnavailable)
		}
		name = sink + ".monitor"
	}
	sources, err := r.Sources(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	for _, src := range sources {
		if src.Name == name || src.Index == name {
			return NewHandle(KindTab, src.Name), nil
		}
	}
	return Handle{}, fmt.Errorf("%w: tab source %q not found", ErrSourceUnavailable, name)
}

// ResolveMicrophone implements Resolver.
func (r *PulseResolver) ResolveMicrophone(ctx context.Context) (Handle, error) {
	name := strings.TrimSpace(r.MicSource)
	if name == "" || name == "default" {
		def, err := r.run(ctx, "get-default-source")
		if err != nil {
			return Handle{}, fmt.Errorf("%w: default source: %v", ErrSourceUnavailable, err)
		}
		name = def
	}
	sources, err := r.Sources(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	for _, src := range sources {
		if src.Name != name {
			continue
		}
		if src.Monitor() {
			return Handle{}, fmt.Errorf("%w: %q is a monitor, not an input device", ErrSourceUnavailable, name)
		}
		return NewHandle(KindMicrophone, src.Name), nil
	}
	return Handle{}, fmt.Errorf("%w: microphone %q not found", ErrSourceUnavailable, name)
}
