package types

import (
	"fmt"
	"time"
)

// Operation names every journaled action the core can run
type Operation string

const (
	OpNone Operation = "None"

	// Server
	OpCreateServer Operation = "CreateServer"
	OpUpdateServer Operation = "UpdateServer"
	OpRenameServer Operation = "RenameServer"
	OpDeleteServer Operation = "DeleteServer"

	// Deployment
	OpCreateDeployment Operation = "CreateDeployment"
	OpUpdateDeployment Operation = "UpdateDeployment"
	OpRenameDeployment Operation = "RenameDeployment"
	OpDeleteDeployment Operation = "DeleteDeployment"
	OpDeploy           Operation = "Deploy"
	OpPullDeployment   Operation = "PullDeployment"
	OpStartContainer   Operation = "StartContainer"
	OpRestartContainer Operation = "RestartContainer"
	OpPauseContainer   Operation = "PauseContainer"
	OpUnpauseContainer Operation = "UnpauseContainer"
	OpStopContainer    Operation = "StopContainer"
	OpDestroyContainer Operation = "DestroyContainer"

	// Stack
	OpCreateStack         Operation = "CreateStack"
	OpUpdateStack         Operation = "UpdateStack"
	OpRenameStack         Operation = "RenameStack"
	OpDeleteStack         Operation = "DeleteStack"
	OpDeployStack         Operation = "DeployStack"
	OpDeployStackIfChanged Operation = "DeployStackIfChanged"
	OpPullStack           Operation = "PullStack"
	OpStartStack          Operation = "StartStack"
	OpRestartStack        Operation = "RestartStack"
	OpPauseStack          Operation = "PauseStack"
	OpUnpauseStack        Operation = "UnpauseStack"
	OpStopStack           Operation = "StopStack"
	OpDestroyStack        Operation = "DestroyStack"

	// Build
	OpCreateBuild Operation = "CreateBuild"
	OpUpdateBuild Operation = "UpdateBuild"
	OpDeleteBuild Operation = "DeleteBuild"
	OpRunBuild    Operation = "RunBuild"
	OpCancelBuild Operation = "CancelBuild"

	// Repo
	OpCreateRepo Operation = "CreateRepo"
	OpUpdateRepo Operation = "UpdateRepo"
	OpDeleteRepo Operation = "DeleteRepo"
	OpCloneRepo  Operation = "CloneRepo"
	OpPullRepo   Operation = "PullRepo"

	// ResourceSync
	OpCreateResourceSync Operation = "CreateResourceSync"
	OpUpdateResourceSync Operation = "UpdateResourceSync"
	OpDeleteResourceSync Operation = "DeleteResourceSync"
	OpRunSync            Operation = "RunSync"

	// Procedure / Action
	OpCreateProcedure Operation = "CreateProcedure"
	OpUpdateProcedure Operation = "UpdateProcedure"
	OpDeleteProcedure Operation = "DeleteProcedure"
	OpRunProcedure    Operation = "RunProcedure"
	OpCreateAction    Operation = "CreateAction"
	OpUpdateAction    Operation = "UpdateAction"
	OpDeleteAction    Operation = "DeleteAction"
	OpRunAction       Operation = "RunAction"

	// Builder / Alerter / ServerTemplate
	OpCreateBuilder        Operation = "CreateBuilder"
	OpUpdateBuilder        Operation = "UpdateBuilder"
	OpDeleteBuilder        Operation = "DeleteBuilder"
	OpCreateAlerter        Operation = "CreateAlerter"
	OpUpdateAlerter        Operation = "UpdateAlerter"
	OpDeleteAlerter        Operation = "DeleteAlerter"
	OpCreateServerTemplate Operation = "CreateServerTemplate"
	OpUpdateServerTemplate Operation = "UpdateServerTemplate"
	OpDeleteServerTemplate Operation = "DeleteServerTemplate"
)

// UpdateStatus is the lifecycle state of an update row
type UpdateStatus string

const (
	UpdateQueued     UpdateStatus = "Queued"
	UpdateInProgress UpdateStatus = "InProgress"
	UpdateComplete   UpdateStatus = "Complete"
)

// Log is one stage of an operation: the command run and what it wrote.
type Log struct {
	Stage   string    `json:"stage"`
	Command string    `json:"command,omitempty"`
	Stdout  string    `json:"stdout,omitempty"`
	Stderr  string    `json:"stderr,omitempty"`
	Success bool      `json:"success"`
	StartTS time.Time `json:"start_ts"`
	EndTS   time.Time `json:"end_ts"`
}

// SimpleLog returns a successful log carrying stdout only.
func SimpleLog(stage, stdout string) Log {
	now := time.Now()
	return Log{
		Stage:   stage,
		Stdout:  stdout,
		Success: true,
		StartTS: now,
		EndTS:   now,
	}
}

// ErrorLog returns a failed log carrying the error on stderr.
func ErrorLog(stage string, err error) Log {
	now := time.Now()
	return Log{
		Stage:   stage,
		Stderr:  fmt.Sprintf("%v", err),
		Success: false,
		StartTS: now,
		EndTS:   now,
	}
}

// Update is the journal record of one operation. Identity is write-once;
// logs are appended during execution until Finalize.
type Update struct {
	ID         string         `json:"id"`
	Operation  Operation      `json:"operation"`
	Target     ResourceTarget `json:"target"`
	Operator   string         `json:"operator"` // user id
	Status     UpdateStatus   `json:"status"`
	Success    bool           `json:"success"`
	StartTS    time.Time      `json:"start_ts"`
	EndTS      time.Time      `json:"end_ts,omitempty"`
	Logs       []Log          `json:"logs,omitempty"`
	Version    Version        `json:"version,omitempty"`
	CommitHash string         `json:"commit_hash,omitempty"`
}

// PushLog appends a stage log preserving insertion order.
func (u *Update) PushLog(l Log) {
	u.Logs = append(u.Logs, l)
}

// PushError appends a failed stage log built from err.
func (u *Update) PushError(stage string, err error) {
	u.Logs = append(u.Logs, ErrorLog(stage, err))
}

// Finalize computes overall success from the logs, stamps the end time
// and marks the update complete.
func (u *Update) Finalize() {
	success := true
	for _, l := range u.Logs {
		if !l.Success {
			success = false
			break
		}
	}
	u.Success = success
	u.Status = UpdateComplete
	u.EndTS = time.Now()
}

// AllLogsSuccessful reports whether every recorded stage succeeded.
func (u *Update) AllLogsSuccessful() bool {
	for _, l := range u.Logs {
		if !l.Success {
			return false
		}
	}
	return true
}
