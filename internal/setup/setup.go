package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/micro-ha/mwan3-status/internal/luci"
	"github.com/micro-ha/mwan3-status/internal/model"
)

// Info is what a successful validation hands back to the caller.
type Info struct {
	Title      string   `json:"title"`
	Interfaces []string `json:"interfaces"`
}

// Description lists the discovered interfaces for display.
func (i Info) Description() string {
	return "Found interfaces: " + strings.Join(i.Interfaces, ", ")
}

// ValidateInput checks cfg against a live router before it is accepted. It
// logs in with a throwaway authenticator and reads the interface status once.
func ValidateInput(ctx context.Context, cfg model.RouterConfig, opts ...luci.Option) (Info, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Info{}, err
	}

	client := luci.NewRouterClient(cfg, opts...)
	defer client.Close()

	body, err := client.FetchStatusBody(ctx)
	if err != nil {
		var statusErr *luci.StatusError
		if errors.As(err, &statusErr) && statusErr.Endpoint == luci.InterfaceStatusPath {
			return Info{}, fmt.Errorf("%w: HTTP %d", luci.ErrCannotConnect, statusErr.StatusCode)
		}
		return Info{}, err
	}

	snapshot, err := luci.ParseStatus(body)
	if err != nil {
		return Info{}, err
	}
	if len(snapshot) == 0 {
		return Info{}, luci.ErrNoInterfaces
	}

	return Info{Title: cfg.DisplayName(), Interfaces: snapshot.Names()}, nil
}
