package dispatch

import (
	"context"

	"github.com/isometry/adis/internal/ldap"
)

// Directory is the set of operations a connected session offers.
type Directory interface {
	ListGroups(ctx context.Context, baseOU string) ([]ldap.GroupRecord, error)
	ListGroupMembers(ctx context.Context, baseOU, groupDN string) ([]ldap.UserRecord, error)
	CreateGroup(ctx context.Context, baseOU, cn, description string) ([]ldap.CreatedGroup, error)
	ReadUserCertificates(ctx context.Context, baseOU, userGUID string) ([]ldap.CertificateRecord, error)
	Close() error
}

var _ Directory = (*ldap.Session)(nil)

// executor binds a method to its parameter type, payload key and directory call.
type executor struct {
	key    string
	decode func(instance map[string]any) (params, error)
	run    func(ctx context.Context, dir Directory, p params) (any, error)
}

func bind[P params](key string, run func(ctx context.Context, dir Directory, p P) (any, error)) executor {
	return executor{
		key: key,
		decode: func(instance map[string]any) (params, error) {
			var p P
			if err := decodeParams(instance, &p); err != nil {
				return nil, err
			}
			return p, nil
		},
		run: func(ctx context.Context, dir Directory, p params) (any, error) {
			return run(ctx, dir, p.(P))
		},
	}
}

func defaultExecutors() map[Method]executor {
	return map[Method]executor{
		MethodListGroupsByOU: bind("groups", func(ctx context.Context, dir Directory, p ListGroupsByOUParams) (any, error) {
			return dir.ListGroups(ctx, p.OUDN)
		}),
		MethodListUsersByGroup: bind("users", func(ctx context.Context, dir Directory, p ListUsersByGroupParams) (any, error) {
			return dir.ListGroupMembers(ctx, p.OUDN, p.GroupDN)
		}),
		MethodCreateGroup: bind("create_group", func(ctx context.Context, dir Directory, p CreateGroupParams) (any, error) {
			var description string
			if p.Description != nil {
				description = *p.Description
			}
			return dir.CreateGroup(ctx, p.OUDN, p.CN, description)
		}),
		MethodGetUserCertificates: bind("certificates", func(ctx context.Context, dir Directory, p GetUserCertificatesParams) (any, error) {
			return dir.ReadUserCertificates(ctx, p.OUDN, p.UserGUID)
		}),
	}
}

// mustCoverMethods panics when a supported method has no executor.
func mustCoverMethods(executors map[Method]executor) {
	for _, method := range Methods() {
		if _, ok := executors[method]; !ok {
			panic("dispatch: no executor registered for method " + string(method))
		}
	}
}
