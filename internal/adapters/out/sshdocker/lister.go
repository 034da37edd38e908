// Package sshdocker lists containers on remote hosts by running the docker
// CLI over SSH. No agent runs on the remote side; two commands per scan
// (docker ps, docker inspect) are the whole protocol.
package sshdocker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bnema/zerowrap"
	"golang.org/x/crypto/ssh"

	"revp/internal/domain"
)

const defaultDialTimeout = 10 * time.Second

// Lister implements out.ContainerLister over SSH.
type Lister struct {
	dialTimeout time.Duration
	log         zerowrap.Logger
}

// Option configures a Lister.
type Option func(*Lister)

// WithDialTimeout sets the TCP/SSH handshake timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(l *Lister) {
		l.dialTimeout = d
	}
}

// NewLister creates an SSH-based container lister.
func NewLister(log zerowrap.Logger, opts ...Option) *Lister {
	l := &Lister{
		dialTimeout: defaultDialTimeout,
		log: zerowrap.Logger{Logger: log.With().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldComponent, "sshdocker").
			Logger()},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListContainers connects to the host, lists running container IDs and
// inspects them in one batch to get names and label maps.
func (l *Lister) ListContainers(ctx context.Context, host domain.HostRecord) ([]domain.ContainerInfo, error) {
	client, err := l.dial(host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	psOut, err := run(client, "docker ps -q")
	if err != nil {
		return nil, fmt.Errorf("listing containers on %s: %w", host.Name, err)
	}

	ids := strings.Fields(string(psOut))
	if len(ids) == 0 {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inspectOut, err := run(client, "docker inspect "+strings.Join(ids, " "))
	if err != nil {
		return nil, fmt.Errorf("inspecting containers on %s: %w", host.Name, err)
	}

	containers, err := parseInspect(inspectOut)
	if err != nil {
		return nil, fmt.Errorf("parsing inspect output from %s: %w", host.Name, err)
	}

	l.log.Debug().
		Str(zerowrap.FieldHost, host.Name).
		Int(zerowrap.FieldCount, len(containers)).
		Msg("containers listed")

	return containers, nil
}

func (l *Lister) dial(host domain.HostRecord) (*ssh.Client, error) {
	key, err := os.ReadFile(host.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key for %s: %w", host.Name, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing key for %s: %w", host.Name, err)
	}

	cfg := &ssh.ClientConfig{
		User:            host.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         l.dialTimeout,
	}

	client, err := ssh.Dial("tcp", host.Address(), cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", host.Name, err)
	}
	return client, nil
}

func run(client *ssh.Client, cmd string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(cmd)
	if err != nil {
		return nil, fmt.Errorf("running %q: %w", cmd, err)
	}
	return out, nil
}

type inspectRecord struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

func parseInspect(out []byte) ([]domain.ContainerInfo, error) {
	var records []inspectRecord
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, err
	}

	containers := make([]domain.ContainerInfo, 0, len(records))
	for _, rec := range records {
		containers = append(containers, domain.ContainerInfo{
			ID:     rec.ID,
			Name:   strings.TrimPrefix(rec.Name, "/"),
			Labels: rec.Config.Labels,
		})
	}
	return containers, nil
}
