package router

import (
	"log/slog"
	"net/http"

	"Lee_Timeline/internal/app"
	"Lee_Timeline/internal/handler"
	"Lee_Timeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// New 注册全部路由；/api 下都需要登录，写接口要求账号已激活
func New(a *app.App, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	users := handler.NewUserHandler(a.Sessions)
	statuses := handler.NewStatusHandler(a.Updates, a.Timeline)
	lines := handler.NewTimelineHandler(a.Timeline, a.Stores.Users)
	follow := handler.NewFollowHandler(a.Friends)
	groups := handler.NewGroupHandler(a.Groups)
	moderation := handler.NewModerationHandler(a.Updates, a.Timeline)
	stream := handler.NewStreamHandler(a.Notifier)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(a.Sessions))
	active := middleware.RequireActivated()

	// 当前会话
	api.GET("/me", users.Me)
	api.POST("/logout", users.Logout)
	api.GET("/stream", stream.Serve)

	// 各条线
	api.GET("/timeline", lines.Timeline())
	api.GET("/mentions", lines.Mentions())
	api.GET("/favorites", lines.Favorites())
	api.GET("/domainline", lines.Domainline())
	api.GET("/tags", lines.Tagline())
	api.GET("/tags/:tag", lines.Tagline())
	api.GET("/users/:username/statuses", lines.Userline())
	api.GET("/users/:username/counts", lines.Counts)
	api.GET("/groups/:id/statuses", lines.Groupline())

	// 状态
	statusGroup := api.Group("/statuses")
	{
		statusGroup.GET("/:id", statuses.Get)
		statusGroup.GET("/:id/details", statuses.Details)
		statusGroup.POST("", active, statuses.Post)
		statusGroup.POST("/:id/replies", active, statuses.Reply)
		statusGroup.DELETE("/:id", statuses.Remove)
		statusGroup.POST("/:id/share", active, statuses.Share)
		statusGroup.POST("/:id/announce", active, statuses.Announce)
		statusGroup.POST("/:id/favorite", active, statuses.Favorite)
		statusGroup.DELETE("/:id/favorite", statuses.Unfavorite)
	}

	// 关注关系
	followGroup := api.Group("/follow")
	{
		followGroup.POST("", active, follow.Follow)
		followGroup.GET("/friends", follow.ListFriends)
		followGroup.GET("/followers", follow.ListFollowers)
		followGroup.GET("/relation", follow.Relation)
		followGroup.GET("/requests", follow.PendingRequests)
		followGroup.DELETE("/requests/:username", follow.RejectRequest)
	}

	// 分组和附件
	groupGroup := api.Group("/groups")
	{
		groupGroup.GET("", groups.List)
		groupGroup.POST("", active, groups.Create)
		groupGroup.GET("/:id", groups.Get)
		groupGroup.POST("/:id/join", active, groups.Join)
		groupGroup.POST("/:id/leave", groups.Leave)
		groupGroup.POST("/:id/members", active, groups.AddMember)
	}
	api.POST("/attachments", active, groups.Upload)
	api.GET("/attachments/:id", groups.Download)

	// 审核，仅管理员
	modGroup := api.Group("/moderation")
	modGroup.Use(middleware.RequireAdmin())
	{
		modGroup.GET("/statuses", moderation.Queue)
		modGroup.GET("/count", moderation.Count)
		modGroup.GET("/statuses/:id", moderation.Pending)
		modGroup.GET("/statuses/:id/audit", moderation.Audit)
		modGroup.POST("/statuses/:id/approve", moderation.Approve)
		modGroup.POST("/statuses/:id/block", moderation.Block)
	}

	return r
}
