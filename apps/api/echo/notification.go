package echoapi

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/user"
	"github.com/susahesumudu/mit-erp/services/pubsub"
)

const tokenParam = "token"

type notificationApi struct {
	usrSvc user.Service
	hub    *pubsub.Hub
	logger core.Logger
}

func registerNotificationAPI(g *echo.Group, usrSvc user.Service, hub *pubsub.Hub, logger core.Logger) {
	api := notificationApi{usrSvc: usrSvc, hub: hub, logger: logger}

	// browsers cannot set headers on websocket requests: the JWT is passed as a query param
	g.GET("/notifications/ws", api.subscribe)
}

// subscribe authenticates the request before upgrading; unauthenticated attempts never get a connection.
func (api *notificationApi) subscribe(ctx echo.Context) error {
	claims, err := ParseToken(ctx.QueryParam(tokenParam))
	if err != nil {
		return errUnauthorized
	}
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUnauthorized
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.Active() {
		return errAccountDeactivated
	}

	if err := api.hub.ServeWS(ctx.Response(), ctx.Request(), usr.ID); err != nil {
		// the upgrader has already replied
		api.logger.Warn(fmt.Sprintf("echoapi.subscribe(%s): %v", usr.ID, err))
	}
	return nil
}
