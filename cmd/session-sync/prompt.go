package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads passphrases from a terminal without echo, or line by
// line from any other reader.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}

	return p
}

// ask prints label and reads one passphrase. Only the line ending is
// stripped; leading and trailing spaces are part of the passphrase.
func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)

	if p.tty {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading from terminal: %w", err)
		}
		return string(b), nil
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// newPassphrase asks for a passphrase twice and requires both to match.
func (p *prompter) newPassphrase() (string, error) {
	first, err := p.ask("New passphrase: ")
	if err != nil {
		return "", err
	}

	if first == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}

	second, err := p.ask("Repeat passphrase: ")
	if err != nil {
		return "", err
	}

	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}

	return first, nil
}

// existing returns a prompt for a passphrase that must open the remote
// verification token.
func (p *prompter) existing() func(attempt int) (string, error) {
	return func(attempt int) (string, error) {
		if attempt > 1 {
			fmt.Fprintln(p.out, "Passphrase did not match, try again.")
		}
		return p.ask("Passphrase: ")
	}
}
