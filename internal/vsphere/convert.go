package vsphere

import (
	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/samber/lo"
	"github.com/vmware/govmomi/vim25/types"
)

func fromReference(ref types.ManagedObjectReference) remote.ObjectRef {
	return remote.ObjectRef{Kind: ref.Type, ID: ref.Value}
}

func toReference(ref remote.ObjectRef) types.ManagedObjectReference {
	return types.ManagedObjectReference{Type: ref.Kind, Value: ref.ID}
}

// normalize replaces SOAP object references with remote.ObjectRef. Other
// ArrayOf wrappers are left to the collector.
func normalize(val any) any {
	switch v := val.(type) {
	case types.ManagedObjectReference:
		return fromReference(v)
	case *types.ManagedObjectReference:
		if v == nil {
			return nil
		}
		return fromReference(*v)
	case types.ArrayOfManagedObjectReference:
		return lo.Map(v.ManagedObjectReference, func(ref types.ManagedObjectReference, _ int) remote.ObjectRef {
			return fromReference(ref)
		})
	case []types.ManagedObjectReference:
		return lo.Map(v, func(ref types.ManagedObjectReference, _ int) remote.ObjectRef {
			return fromReference(ref)
		})
	}
	return val
}
