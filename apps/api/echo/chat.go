package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core/chat"
)

type chatApi struct {
	svc      chat.Service
	validate *validator.Validate
}

func registerChatAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := chatApi{
		svc:      deps.ChatSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/conversations", jwt)
	cg.POST("", api.start)
	cg.GET("", api.query)
	cg.POST("/:id/messages", api.sendMessage)
	cg.GET("/:id/messages", api.queryMessages)
}

// Handlers

func (api *chatApi) start(ctx echo.Context) error {
	var data chat.NewConversation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConversation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.Start(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "starting conversation")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *chatApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	conversations, err := api.svc.List(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing conversations")
	}
	if conversations == nil {
		conversations = []chat.Conversation{}
	}
	return ctx.JSON(http.StatusOK, conversations)
}

func (api *chatApi) sendMessage(ctx echo.Context) error {
	var data chat.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	m, err := api.svc.SendMessage(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *chatApi) queryMessages(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	messages, err := api.svc.ListMessages(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing messages")
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, messages)
}
