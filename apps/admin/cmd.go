package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/dienlabs/eduportal/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	acctRepo user.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  addsuperadmin -account ACCOUNT - create (or promote) a super_admin account")
	fmt.Println("  setrole -account ACCOUNT -role ROLE - set an account's role")
	fmt.Println("  resetpassword -account ACCOUNT - reset an account's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSuperAdminCmd := flag.NewFlagSet("addsuperadmin", flag.ExitOnError)
	addSuperAdminAcct := addSuperAdminCmd.String("account", "", "The account name. The password will be prompted next.")

	setRoleCmd := flag.NewFlagSet("setrole", flag.ExitOnError)
	setRoleAcct := setRoleCmd.String("account", "", "The account name.")
	setRoleRole := setRoleCmd.String("role", "", "One of: "+strings.Join(user.AllRoles, ", "))

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordAcct := resetPasswordCmd.String("account", "", "The account name. The password will be prompted next.")

	switch args[1] {
	case "addsuperadmin":
		if err := addSuperAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSuperAdminAcct == "" {
			addSuperAdminCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addSuperAdminCmd.Usage()
			return errHelp
		}
		return cli.addSuperAdmin(*addSuperAdminAcct, pwd)
	case "setrole":
		if err := setRoleCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setRoleAcct == "" || !validRole(*setRoleRole) {
			setRoleCmd.Usage()
			return errHelp
		}
		return cli.setRole(*setRoleAcct, *setRoleRole)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordAcct == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordAcct, pwd)
	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	return string(pwd), err
}

func validRole(role string) bool {
	for _, r := range user.AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
