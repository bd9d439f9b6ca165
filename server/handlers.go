package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/onboarding"
)

type loginRequest struct {
	Explicit bool `json:"explicit"`
}

type fieldRequest struct {
	Name  string `json:"name" binding:"required"`
	Value any    `json:"value"`
}

type optInRequest struct {
	OptIn *bool `json:"optIn" binding:"required"`
}

type accountRequest struct {
	Fields []string `json:"fields" binding:"required,min=1,dive,required"`
}

func (s *Server) login(ctx context.Context, c *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
	var req loginRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return onboarding.Directive{}, errors.NewBadRequestError(err.Error())
		}
	}
	trigger := onboarding.TriggerMount
	if req.Explicit {
		trigger = onboarding.TriggerUser
	}
	return o.Login(ctx, trigger), nil
}

func (s *Server) setField(ctx context.Context, c *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return onboarding.Directive{}, errors.NewBadRequestError(err.Error())
	}
	return o.SetField(ctx, req.Name, req.Value)
}

func (s *Server) setEmailOptIn(_ context.Context, c *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
	var req optInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return onboarding.Directive{}, errors.NewBadRequestError(err.Error())
	}
	return o.SetEmailOptIn(*req.OptIn), nil
}

func (s *Server) updateAccount(ctx context.Context, c *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return onboarding.Directive{}, errors.NewBadRequestError(err.Error())
	}
	return o.UpdateAccount(ctx, req.Fields)
}
