package core

import (
	"context"

	"pkt.systems/codebench/schema"
)

// Service is the transport-agnostic API for editing sessions, remote
// execution and remote generation.
type Service interface {
	CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.CreateSessionResponse, error)
	GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error)
	ListSessions(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error)
	CloseSession(ctx context.Context, req schema.CloseSessionRequest) (schema.CloseSessionResponse, error)
	ResetSession(ctx context.Context, req schema.ResetSessionRequest) (schema.ResetSessionResponse, error)
	SelectLanguage(ctx context.Context, req schema.SelectLanguageRequest) (schema.SelectLanguageResponse, error)
	EditSource(ctx context.Context, req schema.EditSourceRequest) (schema.EditSourceResponse, error)
	ToggleTheme(ctx context.Context, req schema.ToggleThemeRequest) (schema.ToggleThemeResponse, error)
	SetTheme(ctx context.Context, req schema.SetThemeRequest) (schema.SetThemeResponse, error)
	ImportFile(ctx context.Context, req schema.ImportFileRequest) (schema.ImportFileResponse, error)
	Run(ctx context.Context, req schema.RunRequest) (schema.RunResponse, error)
	Generate(ctx context.Context, req schema.GenerateRequest) (schema.GenerateResponse, error)
	SetQueryInput(ctx context.Context, req schema.SetQueryInputRequest) (schema.SetQueryInputResponse, error)
	SendQuery(ctx context.Context, req schema.SendQueryRequest) (schema.SendQueryResponse, error)
	UpdateGeneratedCode(ctx context.Context, req schema.UpdateGeneratedCodeRequest) (schema.UpdateGeneratedCodeResponse, error)
	DismissNotice(ctx context.Context, req schema.DismissNoticeRequest) (schema.DismissNoticeResponse, error)
}
