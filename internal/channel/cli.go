package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"toolhost/internal/domain"
)

const cliPrompt = "You> "

// CLI is an interactive terminal session against the orchestrator.
type CLI struct {
	handler   Handler
	catalogue Catalogue
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	spinner   bool
	session   string

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Handler   Handler
	Catalogue Catalogue
	Logger    *slog.Logger
	In        io.Reader
	Out       io.Writer
	// Spinner animates a progress line while a request runs.
	Spinner bool
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		handler:   cfg.Handler,
		catalogue: cfg.Catalogue,
		logger:    cfg.Logger,
		in:        cfg.In,
		out:       cfg.Out,
		spinner:   cfg.Spinner,
		session:   "cli-" + uuid.NewString()[:8],
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL until EOF, /quit or ctx cancellation.
func (c *CLI) Start(ctx context.Context) error {
	fmt.Fprintln(c.out, "toolhost chat. Type a request and press Enter. /tools lists tools, /quit exits.")
	fmt.Fprint(c.out, cliPrompt)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit", "/q":
			c.logger.Info("user requested quit")
			return nil
		case "/tools":
			if c.catalogue != nil {
				fmt.Fprintln(c.out, formatCatalogue(c.catalogue.AllTools(ctx)))
			}
		default:
			c.startThinking()
			resp := c.handler.Handle(ctx, domain.Request{UserQuery: line, SessionID: c.session})
			c.stopThinking()
			WriteResponse(c.out, resp)
		}
		fmt.Fprint(c.out, cliPrompt)
	}
	return scanner.Err()
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				fmt.Fprint(c.out, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Working...", frames[i%len(frames)])
			}
		}
	}(c.thinkStop, c.thinkDone)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
	<-c.thinkDone
}

// WriteResponse prints the executed tool calls followed by the final answer.
func WriteResponse(w io.Writer, resp domain.Response) {
	dim := color.New(color.Faint)
	for _, e := range resp.ToolCallsExecuted {
		dim.Fprintf(w, "  -> %s %s\n", e.Tool, compactJSON(e.Args))
		if m, ok := e.Result.(map[string]any); ok && m["error"] != nil {
			color.New(color.FgRed).Fprintf(w, "     %v\n", m["error"])
		}
	}
	color.New(color.FgGreen, color.Bold).Fprintln(w, resp.FinalAnswer)
}
