// Command replay runs recorded frames through the liveness state machine
// and prints every transition. It is used to tune challenge thresholds
// offline against captures from real devices.
//
// Each input line is one frame: {"faces":[{...face observation...}]}.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/config"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type frame struct {
	Faces []liveness.FaceObservation `json:"faces"`
}

type options struct {
	catalogFile    string
	challenges     string
	framing        string
	previewMinX    float64
	previewMinY    float64
	previewSize    float64
	edgeMargin     float64
	tooCloseMargin float64
	all            bool
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stdout)

	var opts options
	fs.StringVar(&opts.catalogFile, "catalog", "", "TOML challenge profile (default thresholds when empty)")
	fs.StringVar(&opts.challenges, "challenges", "", "comma separated challenge order, e.g. BLINK,NOD")
	fs.StringVar(&opts.framing, "framing", string(liveness.FramingContainment), "framing mode: containment or center")
	fs.Float64Var(&opts.previewMinX, "preview-min-x", 25, "preview left edge")
	fs.Float64Var(&opts.previewMinY, "preview-min-y", 50, "preview top edge")
	fs.Float64Var(&opts.previewSize, "preview-size", 325, "preview side length")
	fs.Float64Var(&opts.edgeMargin, "edge-margin", 50, "containment edge allowance")
	fs.Float64Var(&opts.tooCloseMargin, "too-close-margin", 90, "face size below the preview size that counts as too close")
	fs.BoolVar(&opts.all, "all", false, "print every frame, not only transitions")

	if err := fs.Parse(args); err != nil {
		return err
	}

	in := stdin
	if path := fs.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	machine, session, err := setup(opts)
	if err != nil {
		return err
	}
	return replay(machine, session, in, stdout, opts.all)
}

func setup(opts options) (*liveness.Machine, liveness.Session, error) {
	catalog, err := config.LoadCatalog(opts.catalogFile)
	if err != nil {
		return nil, liveness.Session{}, err
	}

	preview := liveness.Rect{MinX: opts.previewMinX, MinY: opts.previewMinY, Width: opts.previewSize, Height: opts.previewSize}
	mode := liveness.FramingMode(opts.framing)
	framing, err := liveness.NewFraming(mode, preview, opts.edgeMargin)
	if err != nil {
		return nil, liveness.Session{}, err
	}

	var maxFaceSize float64
	if mode != liveness.FramingCenter {
		maxFaceSize = min(preview.Width, preview.Height) - opts.tooCloseMargin
	}
	machine := liveness.NewMachine(catalog, framing, maxFaceSize)

	var order []liveness.ChallengeKind
	if opts.challenges != "" {
		for _, name := range strings.Split(opts.challenges, ",") {
			order = append(order, liveness.ChallengeKind(strings.ToUpper(strings.TrimSpace(name))))
		}
	}
	session, err := machine.NewSession(order)
	if err != nil {
		return nil, liveness.Session{}, err
	}
	return machine, session, nil
}

func replay(machine *liveness.Machine, session liveness.Session, in io.Reader, out io.Writer, all bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	n := 0
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var f frame
		if err := codec.UnmarshalFromString(text, &f); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		n++

		next := machine.Process(session, liveness.InputFromFaces(f.Faces))
		if all || changed(session, next) {
			fmt.Fprintf(out, "frame %d: %s\n", n, describe(machine, session, next))
		}
		session = next

		if session.Complete {
			fmt.Fprintf(out, "complete after %d frames\n", n)
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read frames: %w", err)
	}

	fmt.Fprintf(out, "not complete after %d frames: %s\n", n, liveness.Prompt(session))
	return nil
}

// changed ignores the roll history, which moves on every NOD frame.
func changed(prev, next liveness.Session) bool {
	return prev.Phase() != next.Phase() ||
		prev.CurrentIndex != next.CurrentIndex ||
		prev.Progress != next.Progress ||
		prev.FaceTooClose != next.FaceTooClose
}

func describe(machine *liveness.Machine, prev, next liveness.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s progress=%.2f", prev.Phase(), next.Phase(), next.Progress)
	if next.CurrentIndex > prev.CurrentIndex || (next.Complete && !prev.Complete) {
		fmt.Fprintf(&b, " passed=%s", prev.Order[prev.CurrentIndex])
	}
	if kind, ok := next.CurrentChallenge(); ok {
		fmt.Fprintf(&b, " challenge=%s (%s)", kind, machine.Instruction(next))
	}
	return b.String()
}
