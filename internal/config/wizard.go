package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and printing prompts to out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the settings a first-time install needs, starting from base
// (or the defaults when nil). Empty answers keep the current value.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	fmt.Fprintln(w.out, "=== afkd Configuration Wizard ===")
	fmt.Fprintln(w.out)

	// Bridge
	for {
		fmt.Fprintf(w.out, "Game bridge URL [%s]: ", cfg.Bridge.URL)
		raw, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		if err := validator.ValidateBridgeURL(raw); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Bridge.URL = raw
		break
	}

	fmt.Fprint(w.out, "Game bridge secret (press Enter to skip): ")
	secret, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if secret != "" {
		cfg.Bridge.Secret = secret
	}

	fmt.Fprintln(w.out)

	// Gateway
	for {
		fmt.Fprintf(w.out, "Control API port [%d]: ", cfg.Gateway.Port)
		raw, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		port, convErr := strconv.Atoi(raw)
		if convErr == nil {
			convErr = validator.ValidatePort(port)
		}
		if convErr != nil {
			fmt.Fprintf(w.out, "Error: invalid port %q\n", raw)
			continue
		}
		cfg.Gateway.Port = port
		break
	}

	for {
		fmt.Fprint(w.out, "Control API shared secret (press Enter to generate one, '-' to disable): ")
		raw, err := w.readLine()
		if err != nil {
			return nil, err
		}
		switch raw {
		case "":
			generated, err := gonanoid.New(32)
			if err != nil {
				return nil, fmt.Errorf("failed to generate shared secret: %w", err)
			}
			cfg.Gateway.SharedSecret = generated
			fmt.Fprintf(w.out, "Generated shared secret: %s\n", generated)
		case "-":
			cfg.Gateway.SharedSecret = ""
		default:
			if err := validator.ValidateSharedSecret(raw); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Gateway.SharedSecret = raw
		}
		break
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintf(w.out, "Log level (debug/info/warn/error) [%s]: ", cfg.Logging.Level)
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// readLine returns the next trimmed line. A final line without a newline is
// still returned; io.EOF is only reported when nothing was read.
func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
