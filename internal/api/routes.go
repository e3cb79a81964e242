package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/bookvault/bookvault/internal/middleware"
	"github.com/bookvault/bookvault/internal/models"
)

var plain = middleware.RoutePolicy{}

// transactional runs the route inside one transaction at the given level.
func transactional(iso pgx.TxIsoLevel) middleware.RoutePolicy {
	return middleware.RoutePolicy{Transactional: true, Isolation: iso}
}

// audited declares a standalone audit entry for successful requests.
func audited(action models.AuditAction, table, recordParam string) middleware.RoutePolicy {
	return middleware.RoutePolicy{
		Audit: &middleware.AuditSpec{Action: action, Table: table, RecordParam: recordParam},
	}
}

// routeTable registers handlers and records each route's policy under the
// full path gin reports for it.
type routeTable struct {
	group  *gin.RouterGroup
	policy middleware.PolicyTable
}

func newRouteTable(group *gin.RouterGroup, policy middleware.PolicyTable) *routeTable {
	return &routeTable{group: group, policy: policy}
}

func (rt *routeTable) handle(method, path string, p middleware.RoutePolicy, h gin.HandlerFunc) {
	rt.group.Handle(method, path, h)
	rt.policy.Set(method, rt.group.BasePath()+path, p)
}
