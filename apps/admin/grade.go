package main

import (
	"context"
	"fmt"

	"github.com/susahesumudu/mit-erp/core/grade"
)

func (cli *commandLine) setGender(studentID, gender string) error {
	return cli.gradeSvc.SetGender(context.Background(), studentID, grade.SetGender{Gender: gender})
}

func (cli *commandLine) predict(studentID string) error {
	pred, err := cli.gradeSvc.Predict(context.Background(), grade.PredictRequest{StudentID: studentID})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s (%s): %s\n", pred.Student.Name, pred.Student.ID, pred.Result)
	return nil
}

func (cli *commandLine) checkArtifacts() error {
	err := cli.artifacts.Reload()
	st := cli.artifacts.Status()
	fmt.Fprintf(cli.out, "scaler:     %s loaded=%t %s\n", st.ScalerPath, st.ScalerLoaded, st.ScalerError)
	fmt.Fprintf(cli.out, "classifier: %s loaded=%t %s\n", st.ClassifierPath, st.ClassifierLoaded, st.ClassifierError)
	return err
}
