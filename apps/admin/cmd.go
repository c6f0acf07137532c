package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	usrRepo   user.Repository
	gradeSvc  grade.Service
	artifacts *grade.ArtifactStore
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run database migrations (goose commands)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-role ROLE] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  setgender -student ID -gender M|F|O - set a student's gender")
	fmt.Fprintln(cli.out, "  predict -student ID - predict a student's final grade")
	fmt.Fprintln(cli.out, "  checkartifacts - load and report the prediction artifacts")
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "The user's role. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	setGenderCmd := flag.NewFlagSet("setgender", flag.ContinueOnError)
	setGenderStudent := setGenderCmd.String("student", "", "The student's ID.")
	setGenderValue := setGenderCmd.String("gender", "", "One of M, F or O.")

	predictCmd := flag.NewFlagSet("predict", flag.ContinueOnError)
	predictStudent := predictCmd.String("student", "", "The student's ID.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, setGenderCmd, predictCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserRole)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "setgender":
		if err := setGenderCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *setGenderStudent == "" || *setGenderValue == "" {
			setGenderCmd.Usage()
			return errHelp
		}
		return cli.setGender(*setGenderStudent, *setGenderValue)

	case "predict":
		if err := predictCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *predictStudent == "" {
			predictCmd.Usage()
			return errHelp
		}
		return cli.predict(*predictStudent)

	case "checkartifacts":
		return cli.checkArtifacts()

	default:
		cli.printUsage()
		return errHelp
	}
}
