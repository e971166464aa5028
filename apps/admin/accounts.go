package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/user"
)

// addSuperAdmin creates the account if it does not exist, then promotes
// it to super_admin, activates it and sets its password.
func (cli *commandLine) addSuperAdmin(account, pwd string) error {
	ctx := context.Background()
	account = core.CleanString(account, true /* lower */)

	acct, err := cli.acctRepo.GetByAccount(ctx, account)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		acct = user.Account{
			Account:   account,
			Role:      user.RoleSuperAdmin,
			Status:    user.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = acct.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.acctRepo.Create(ctx, acct)
		return err
	}

	if err = cli.acctRepo.SetRole(ctx, acct.ID, user.RoleSuperAdmin); err != nil {
		return err
	}
	if err = cli.acctRepo.SetStatus(ctx, acct.ID, user.StatusActive); err != nil {
		return err
	}
	if err = acct.SetPassword(pwd); err != nil {
		return err
	}
	return cli.acctRepo.SetPassword(ctx, acct.ID, acct.PasswordHash)
}

func (cli *commandLine) setRole(account, role string) error {
	ctx := context.Background()
	acct, err := cli.acctRepo.GetByAccount(ctx, core.CleanString(account, true /* lower */))
	if err != nil {
		return err
	}
	return cli.acctRepo.SetRole(ctx, acct.ID, role)
}

func (cli *commandLine) resetPassword(account, pwd string) error {
	ctx := context.Background()
	acct, err := cli.acctRepo.GetByAccount(ctx, core.CleanString(account, true /* lower */))
	if err != nil {
		return err
	}
	if err = acct.SetPassword(pwd); err != nil {
		return err
	}
	return cli.acctRepo.SetPassword(ctx, acct.ID, acct.PasswordHash)
}
