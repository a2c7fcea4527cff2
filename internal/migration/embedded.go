package migration

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Bundle describes the migrations compiled into the binary.
type Bundle struct {
	Version  uint
	Checksum string
	Files    []string
}

func (b Bundle) VersionString() string {
	return strconv.FormatUint(uint64(b.Version), 10)
}

// Embedded reads the up migrations once, returning the highest version and a
// sha256 over every file name and body in version order.
func Embedded() (Bundle, error) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		return Bundle{}, fmt.Errorf("list migrations: %w", err)
	}

	var bundle Bundle
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, ok := versionOf(name)
		if !ok {
			return Bundle{}, fmt.Errorf("invalid migration filename: %s", name)
		}
		bundle.Version = max(bundle.Version, version)
		bundle.Files = append(bundle.Files, name)
	}
	if len(bundle.Files) == 0 {
		return Bundle{}, errors.New("no embedded migrations found")
	}
	sort.Strings(bundle.Files)

	h := sha256.New()
	for _, name := range bundle.Files {
		body, err := embeddedMigrations.ReadFile(migrationsDir + "/" + name)
		if err != nil {
			return Bundle{}, fmt.Errorf("read migration %s: %w", name, err)
		}
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(body)
		h.Write([]byte{0})
	}
	bundle.Checksum = hex.EncodeToString(h.Sum(nil))
	return bundle, nil
}

// versionOf parses the numeric prefix of "000002_notifications.up.sql".
func versionOf(name string) (uint, bool) {
	prefix, _, found := strings.Cut(name, "_")
	if !found || prefix == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}
