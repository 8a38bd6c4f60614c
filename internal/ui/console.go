package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/audiolibrelab/remotecapture/internal/controller"
)

// Actions is the part of the recording controller the console drives
type Actions interface {
	Start()
	Stop()
	Play()
	Snapshot() controller.Snapshot
	Subscribe(fn func(controller.Snapshot)) func()
}

// Sender transmits free text on the command channel
type Sender interface {
	Send(text string)
}

// Console is the manual Start/Stop/Play surface on a terminal
type Console struct {
	in      io.Reader
	out     io.Writer
	loop    *Loop
	actions Actions
	sender  Sender

	outMutex sync.Mutex
}

// NewConsole creates a console; sender may be nil when no channel is available
func NewConsole(in io.Reader, out io.Writer, loop *Loop, actions Actions, sender Sender) *Console {
	return &Console{
		in:      in,
		out:     out,
		loop:    loop,
		actions: actions,
		sender:  sender,
	}
}

// Run reads commands until the input ends or ctx is cancelled
func (c *Console) Run(ctx context.Context) error {
	unsubscribe := c.actions.Subscribe(func(s controller.Snapshot) {
		c.println(Render(s))
	})
	defer unsubscribe()

	c.println(Render(c.actions.Snapshot()))
	c.println("Commands: start, stop, play, status, send <text>, help")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.handle(line)
		}
	}
}

func (c *Console) handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	command, arg, _ := strings.Cut(line, " ")

	switch strings.ToLower(command) {
	case "start":
		c.post(c.actions.Start)
	case "stop":
		c.post(c.actions.Stop)
	case "play":
		c.post(c.actions.Play)
	case "status":
		c.println(Render(c.actions.Snapshot()))
	case "send":
		if c.sender == nil {
			c.println("No command channel available")
			return
		}
		if arg = strings.TrimSpace(arg); arg == "" {
			c.println("Usage: send <text>")
			return
		}
		c.sender.Send(arg)
	case "help":
		c.println("Commands: start, stop, play, status, send <text>, help")
	default:
		c.println(fmt.Sprintf("Unknown command: %s", command))
	}
}

func (c *Console) post(fn func()) {
	if !c.loop.Post(fn) {
		c.println("Shutting down, command ignored")
	}
}

func (c *Console) println(s string) {
	c.outMutex.Lock()
	defer c.outMutex.Unlock()
	fmt.Fprintln(c.out, s)
}
