package vsphere

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"

	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

// mapError translates a govmomi error into the remote error taxonomy.
func mapError(op string, obj remote.ObjectRef, err error) error {
	if err == nil {
		return nil
	}

	var fault any
	detail := err.Error()
	switch {
	case soap.IsSoapFault(err):
		f := soap.ToSoapFault(err)
		fault = f.VimFault()
		detail = f.String
	case soap.IsVimFault(err):
		fault = soap.ToVimFault(err)
	}
	if fault != nil {
		return faultError(op, obj, "", fault, detail)
	}

	var (
		urlErr  *url.Error
		netErr  net.Error
		certErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %v", remote.ErrConnectivity, op, err)
	case errors.As(err, &certErr), errors.As(err, &hostErr):
		return fmt.Errorf("%w: %s: tls: %v", remote.ErrConnectivity, op, err)
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return fmt.Errorf("%w: %s: %v", remote.ErrConnectivity, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func faultError(op string, obj remote.ObjectRef, path string, fault any, detail string) error {
	switch f := fault.(type) {
	case types.InvalidLogin, *types.InvalidLogin:
		return fmt.Errorf("%w: %s", remote.ErrAuthentication, detail)
	case types.NotAuthenticated, *types.NotAuthenticated:
		return fmt.Errorf("%w: %s", remote.ErrSessionExpired, detail)
	case types.NoPermission, *types.NoPermission:
		return &remote.Error{Op: op, Object: obj, Path: path, Fault: "NoPermission", Detail: detail, Denied: true}
	case types.InvalidProperty:
		return &remote.Error{Op: op, Object: obj, Path: pathOr(f.Name, path), Fault: "InvalidProperty", Detail: detail}
	case *types.InvalidProperty:
		return &remote.Error{Op: op, Object: obj, Path: pathOr(f.Name, path), Fault: "InvalidProperty", Detail: detail}
	}
	return &remote.Error{Op: op, Object: obj, Path: path, Fault: faultName(fault), Detail: detail}
}

func pathOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func faultName(fault any) string {
	t := reflect.TypeOf(fault)
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
