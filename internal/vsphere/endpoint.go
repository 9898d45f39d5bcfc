// Package vsphere implements remote.Endpoint over the vSphere SOAP API.
package vsphere

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

type Config struct {
	// Insecure skips server certificate verification.
	Insecure bool          `mapstructure:"insecure"`
	CAFile   string        `mapstructure:"ca_file"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Endpoint struct {
	config Config
}

func NewEndpoint(config Config) *Endpoint {
	return &Endpoint{config: config}
}

// Authenticate logs in to host, which is either a bare hostname or a full
// SDK URL.
func (e *Endpoint) Authenticate(ctx context.Context, creds remote.Credentials) (remote.Conn, error) {
	u, err := soap.ParseURL(creds.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: parse host %q: %v", remote.ErrConnectivity, creds.Host, err)
	}

	sc := soap.NewClient(u, e.config.Insecure)
	if e.config.CAFile != "" {
		if err := sc.SetRootCAs(e.config.CAFile); err != nil {
			return nil, fmt.Errorf("%w: load CA file %s: %v", remote.ErrConnectivity, e.config.CAFile, err)
		}
	}
	if e.config.Timeout > 0 {
		sc.Timeout = e.config.Timeout
	}

	client, err := vim25.NewClient(ctx, sc)
	if err != nil {
		return nil, mapError("RetrieveServiceContent", remote.ObjectRef{}, err)
	}

	sessions := session.NewManager(client)
	if err := sessions.Login(ctx, url.UserPassword(creds.Username, creds.Password)); err != nil {
		return nil, mapError("Login", remote.ObjectRef{}, err)
	}

	slog.Debug("vSphere login succeeded", "host", u.Host, "api_version", client.ServiceContent.About.ApiVersion)
	return &Conn{client: client, sessions: sessions}, nil
}

type Conn struct {
	client   *vim25.Client
	sessions *session.Manager
}

func (c *Conn) RootFolder() remote.ObjectRef {
	return fromReference(c.client.ServiceContent.RootFolder)
}

func (c *Conn) CreateView(ctx context.Context, kind string, root remote.ObjectRef) (remote.ObjectRef, error) {
	v, err := view.NewManager(c.client).CreateContainerView(ctx, toReference(root), []string{kind}, true)
	if err != nil {
		return remote.ObjectRef{}, mapError("CreateContainerView", root, err)
	}
	return fromReference(v.Reference()), nil
}

func (c *Conn) DestroyView(ctx context.Context, v remote.ObjectRef) error {
	_, err := methods.DestroyView(ctx, c.client, &types.DestroyView{This: toReference(v)})
	return mapError("DestroyView", v, err)
}

func (c *Conn) RetrieveProperties(ctx context.Context, v remote.ObjectRef, kind string, paths []string) ([]remote.ObjectContent, error) {
	req := types.RetrieveProperties{
		This: c.client.ServiceContent.PropertyCollector,
		SpecSet: []types.PropertyFilterSpec{{
			ObjectSet: []types.ObjectSpec{{
				Obj:  toReference(v),
				Skip: types.NewBool(true),
				SelectSet: []types.BaseSelectionSpec{
					&types.TraversalSpec{Type: "ContainerView", Path: "view"},
				},
			}},
			PropSet: []types.PropertySpec{{
				Type:    kind,
				PathSet: paths,
			}},
		}},
	}

	res, err := methods.RetrieveProperties(ctx, c.client, &req)
	if err != nil {
		return nil, mapError("RetrieveProperties", v, err)
	}

	out := make([]remote.ObjectContent, 0, len(res.Returnval))
	for _, oc := range res.Returnval {
		obj := fromReference(oc.Obj)
		content := remote.ObjectContent{Object: obj}
		for _, p := range oc.PropSet {
			content.Properties = append(content.Properties, remote.Property{Path: p.Name, Value: normalize(p.Val)})
		}
		for _, mp := range oc.MissingSet {
			missing := remote.MissingProperty{Path: mp.Path}
			if mp.Fault.Fault != nil {
				missing.Err = faultError("RetrieveProperties", obj, mp.Path, mp.Fault.Fault, mp.Fault.LocalizedMessage)
			}
			content.Missing = append(content.Missing, missing)
		}
		out = append(out, content)
	}
	return out, nil
}

// Ping reads the current session, which the server only returns while the
// session is valid.
func (c *Conn) Ping(ctx context.Context) error {
	us, err := c.sessions.UserSession(ctx)
	if err != nil {
		return mapError("UserSession", remote.ObjectRef{}, err)
	}
	if us == nil {
		return remote.ErrSessionExpired
	}
	return nil
}

func (c *Conn) Logout(ctx context.Context) error {
	return mapError("Logout", remote.ObjectRef{}, c.sessions.Logout(ctx))
}
