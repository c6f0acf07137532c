package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd, role string) error {
	var usr user.User
	var err error
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	if user.RolePriority(role) == 0 {
		return errors.Errorf("unknown role %q", role)
	}

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}}); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: user.NowFunc().UTC(),
		}
	}
	if name != "" {
		usr.Name = core.CleanString(name)
	}
	if role == user.RoleAdmin {
		usr.Roles = user.AllRoles
	} else {
		usr.Roles = []string{role}
	}
	usr.UpdatedAt = user.NowFunc().UTC()
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
