// Package publish uploads generated outputs to an FTP server.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// Config describes the destination server.
type Config struct {
	Host     string // host:port
	User     string
	Password string
	Dir      string // remote base directory
	Timeout  time.Duration
}

// conn is the subset of *ftp.ServerConn used for uploads.
type conn interface {
	Login(user, password string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (conn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (conn, error) {
	return ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
}

type Publisher struct {
	cfg  Config
	dial dialFunc
}

func New(cfg Config) *Publisher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
		cfg.Password = "anonymous"
	}
	return &Publisher{cfg: cfg, dial: dialFTP}
}

// Upload copies files to the server, keeping their paths relative to base.
// Files outside base are rejected. Returns the remote paths written.
func (p *Publisher) Upload(ctx context.Context, base string, files []string) ([]string, error) {
	if p.cfg.Host == "" {
		return nil, errors.New("no FTP host configured")
	}
	if len(files) == 0 {
		return nil, nil
	}

	type upload struct{ local, remote string }
	var uploads []upload
	for _, f := range files {
		rel, err := filepath.Rel(base, f)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%s is outside %s", f, base)
		}
		uploads = append(uploads, upload{f, path.Join(p.cfg.Dir, filepath.ToSlash(rel))})
	}

	c, err := p.dial(ctx, p.cfg.Host, p.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer c.Quit()

	if err := c.Login(p.cfg.User, p.cfg.Password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	var remotes []string
	for _, u := range uploads {
		remotes = append(remotes, u.remote)
	}
	makeDirs(c, remotes)

	var written []string
	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := stor(c, u.local, u.remote); err != nil {
			return written, err
		}
		log.Printf("publish: uploaded %s", u.remote)
		written = append(written, u.remote)
	}
	return written, nil
}

// remoteDirs lists every directory that must exist to hold files, parents
// before children.
func remoteDirs(files []string) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		for d := path.Dir(f); d != "." && d != "/" && !seen[d]; d = path.Dir(d) {
			seen[d] = true
		}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if ni, nj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/"); ni != nj {
			return ni < nj
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}

// makeDirs creates the remote directories. Failures are ignored since the
// directory usually exists already; a real problem surfaces on STOR.
func makeDirs(c conn, files []string) {
	for _, d := range remoteDirs(files) {
		_ = c.MakeDir(d)
	}
}

func stor(c conn, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := c.Stor(remote, f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", remote, err)
	}
	return nil
}
