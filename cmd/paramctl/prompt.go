package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urmzd/homai-panel/pkg/editor"
)

// prompt asks confirmation questions on the terminal.
type prompt struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func (p *prompt) Confirm(ctx context.Context, req editor.ConfirmRequest) bool {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	fmt.Fprintf(p.out, "%s\n%s\n", req.Title, req.Body)
	fmt.Fprintf(p.out, "%s? [y/N] ", req.ConfirmLabel)

	answer := make(chan string, 1)
	go func() {
		line, _ := p.reader.ReadString('\n')
		answer <- line
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "j", "ja":
			return true
		}
		return false
	}
}
