package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rm
		ht
		jw
		tr
	)

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	markTop := func(s section, name string) error {
		if seenTop[s] {
			return fmt.Errorf("line %d: duplicate '%s' section", lineNo, name)
		}
		seenTop[s] = true
		cur = s
		return nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if line[0] != ' ' && line[0] != '\t' {
			var err error
			switch strings.TrimSpace(line) {
			case "database:":
				err = markTop(db, "database")
			case "rabbitmq:":
				err = markTop(rm, "rabbitmq")
			case "http:":
				err = markTop(ht, "http")
			case "jwt:":
				err = markTop(jw, "jwt")
			case "tracking:":
				err = markTop(tr, "tracking")
			default:
				err = fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			if err != nil {
				return err
			}
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := strings.TrimSpace(trim[colon+1:])

		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = resolveScalar(val)
			case "port":
				p, err := strconv.Atoi(resolveScalar(val))
				if err != nil {
					return fmt.Errorf("line %d: database.port must be int: %v", lineNo, err)
				}
				cfg.Database.Port = p
			case "user":
				cfg.Database.User = resolveScalar(val)
			case "password":
				cfg.Database.Password = resolveScalar(val)
			case "database":
				cfg.Database.Name = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = resolveScalar(val)
			case "port":
				p, err := strconv.Atoi(resolveScalar(val))
				if err != nil {
					return fmt.Errorf("line %d: rabbitmq.port must be int: %v", lineNo, err)
				}
				cfg.RabbitMQ.Port = p
			case "user":
				cfg.RabbitMQ.User = resolveScalar(val)
			case "password":
				cfg.RabbitMQ.Password = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case ht:
			switch key {
			case "port":
				p, err := strconv.Atoi(resolveScalar(val))
				if err != nil {
					return fmt.Errorf("line %d: http.port must be int: %v", lineNo, err)
				}
				cfg.HTTP.Port = p
			default:
				return fmt.Errorf("line %d: unknown key in http: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "secret_key":
				cfg.JWT.SecretKey = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case tr:
			switch key {
			case "min_update_interval":
				d, err := time.ParseDuration(resolveScalar(val))
				if err != nil {
					return fmt.Errorf("line %d: tracking.min_update_interval must be a duration: %v", lineNo, err)
				}
				cfg.Tracking.MinUpdateInterval = d
			case "expiry":
				d, err := time.ParseDuration(resolveScalar(val))
				if err != nil {
					return fmt.Errorf("line %d: tracking.expiry must be a duration: %v", lineNo, err)
				}
				cfg.Tracking.Expiry = d
			case "sweep_interval":
				d, err := time.ParseDuration(resolveScalar(val))
				if err != nil {
					return fmt.Errorf("line %d: tracking.sweep_interval must be a duration: %v", lineNo, err)
				}
				cfg.Tracking.SweepInterval = d
			case "queue_size":
				n, err := strconv.Atoi(resolveScalar(val))
				if err != nil {
					return fmt.Errorf("line %d: tracking.queue_size must be int: %v", lineNo, err)
				}
				cfg.Tracking.QueueSize = n
			default:
				return fmt.Errorf("line %d: unknown key in tracking: %q", lineNo, key)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

// resolveScalar trims whitespace, removes surrounding quotes, and expands
// ${ENV_VAR} references so secrets never need to live in the file.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				s = unq
			} else {
				s = s[1 : n-1]
			}
		}
	}

	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		if v := os.Getenv(s[2 : len(s)-1]); v != "" {
			return v
		}
	}
	return s
}
