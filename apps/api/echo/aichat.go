package echoapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core/ai"
)

type aiApi struct {
	svc      ai.Service
	validate *validator.Validate
}

func registerAIChatAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := aiApi{
		svc:      deps.AISvc,
		validate: deps.Validate,
	}

	ag := g.Group("/ai", jwt)
	ag.POST("/chat", api.chat)
}

// chat accepts either a JSON body or a multipart form carrying an optional
// CSV file to stage for the assistant's code runner.
func (api *aiApi) chat(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var req ai.ChatRequest
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req.Message = ctx.FormValue("message")
		if fh, fErr := ctx.FormFile("file"); fErr == nil {
			f, err := fh.Open()
			if err != nil {
				return errors.Wrap(err, "opening uploaded file")
			}
			defer func() { _ = f.Close() }()
			if req.File, err = io.ReadAll(f); err != nil {
				return errors.Wrap(err, "reading uploaded file")
			}
		}
	} else if err = ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to ChatRequest")
	}
	if err = req.Validate(api.validate); err != nil {
		return err
	}

	reply, err := api.svc.Chat(ctx.Request().Context(), actor, req)
	if err != nil {
		return errors.Wrap(err, "chatting with assistant")
	}
	return ctx.JSON(http.StatusOK, reply)
}
