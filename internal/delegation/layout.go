package delegation

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Paths inside the unit. The server directory is mounted at bindRoot.
const (
	bindRoot       = "/etc/bind"
	forwardersConf = "forwarders.conf"
	overrideFile   = "override.rpz"
	overrideZone   = "rpz"
)

// Zone directions.
const (
	dirForward = "fwd"
	dirReverse = "rev"
)

func unitName(id int64) string {
	return "dns-server-" + strconv.FormatInt(id, 10)
}

// parseDirection accepts the short and long direction spellings.
func parseDirection(s string) (string, bool) {
	switch strings.ToLower(s) {
	case "fwd", "forward":
		return dirForward, true
	case "rev", "reverse":
		return dirReverse, true
	}
	return "", false
}

// zoneBase is the file base name of a zone: its name without the trailing
// dot, or "root" for the root zone.
func zoneBase(zoneName string) string {
	n := normalizeDomain(zoneName)
	if n == "." {
		return "root"
	}
	return n
}

func (e *Engine) serverDir(id int64) string {
	return filepath.Join(e.baseDir, strconv.FormatInt(id, 10))
}

func (e *Engine) zonePath(id int64, zoneName, dir string) string {
	return filepath.Join(e.serverDir(id), "zones", zoneBase(zoneName)+"."+dir)
}

func (e *Engine) zoneConfPath(id int64, zoneName, dir string) string {
	return filepath.Join(e.serverDir(id), "conf", zoneBase(zoneName)+"."+dir+".conf")
}

func (e *Engine) namedConfPath(id int64) string {
	return filepath.Join(e.serverDir(id), "named.conf")
}

func (e *Engine) overridePath(id int64) string {
	return filepath.Join(e.serverDir(id), "zones", overrideFile)
}

const namedConfTemplate = `options {
	directory "/var/cache/bind";
	listen-on { any; };
	allow-query { any; };
	recursion yes;
	dnssec-validation no;
	include "%[1]s/conf/%[2]s";
	response-policy { zone "%[3]s"; };
};

zone "%[3]s" IN {
	type master;
	file "%[1]s/zones/%[4]s";
	allow-query { none; };
};
`

// controlsText lets rndc on the host reach the daemon with the shared key.
const controlsText = `
include "%s/rndc.key";
controls {
	inet * allow { any; } keys { "rndc-key"; };
};
`

const overrideTemplate = `$TTL 60
@ IN SOA localhost. root.localhost. ( 1 3600 600 86400 60 )
@ IN NS localhost.
`

// writeLayout creates the configuration tree of a new server.
func (e *Engine) writeLayout(id int64) error {
	dir := e.serverDir(id)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	for _, sub := range []string{"conf", "zones"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return err
		}
	}
	named := fmt.Sprintf(namedConfTemplate, bindRoot, forwardersConf, overrideZone, overrideFile)
	if e.cfg.RNDCKey != "" {
		key, err := os.ReadFile(e.cfg.RNDCKey)
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, "rndc.key"), string(key)); err != nil {
			return err
		}
		named += fmt.Sprintf(controlsText, bindRoot)
	}
	if err := writeFile(e.namedConfPath(id), named); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "conf", forwardersConf), forwardersText(nil)); err != nil {
		return err
	}
	return writeFile(e.overridePath(id), overrideTemplate)
}

func zoneConfText(zoneName, dir string) string {
	return fmt.Sprintf("zone \"%s\" IN {\n\ttype master;\n\tfile \"%s/zones/%s.%s\";\n};\n",
		normalizeDomain(zoneName), bindRoot, zoneBase(zoneName), dir)
}

func includeLine(zoneName, dir string) string {
	return fmt.Sprintf("include \"%s/conf/%s.%s.conf\";", bindRoot, zoneBase(zoneName), dir)
}

func forwardersText(addrs []string) string {
	var b strings.Builder
	b.WriteString("forwarders {")
	for _, a := range addrs {
		b.WriteString(" ")
		b.WriteString(a)
		b.WriteString(";")
	}
	b.WriteString(" };\n")
	return b.String()
}

// addInclude appends the include line for a zone to named.conf unless it
// is already present.
func (e *Engine) addInclude(id int64, zoneName, dir string) error {
	path := e.namedConfPath(id)
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	line := includeLine(zoneName, dir)
	for _, l := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(l) == line {
			return nil
		}
	}
	text := string(raw)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return writeFile(path, text+line+"\n")
}

// removeInclude drops the include line for a zone from named.conf.
func (e *Engine) removeInclude(id int64, zoneName, dir string) error {
	path := e.namedConfPath(id)
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	line := includeLine(zoneName, dir)
	var kept []string
	for _, l := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(l) != line {
			kept = append(kept, l)
		}
	}
	return writeFile(path, strings.Join(kept, "\n"))
}

// writeFile replaces path atomically.
func writeFile(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".labnet-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
