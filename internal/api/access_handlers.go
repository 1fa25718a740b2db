package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/mmo-replay/internal/access"
)

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	CallSign string `json:"callsign" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success  bool     `json:"success"`
	Token    string   `json:"token,omitempty"`
	Message  string   `json:"message"`
	CallSign string   `json:"callsign,omitempty"`
	IsAdmin  bool     `json:"is_admin,omitempty"`
	Perms    []string `json:"perms,omitempty"`
}

// UserResponse запись пользователя без пароля
type UserResponse struct {
	CallSign string   `json:"callsign"`
	Groups   []string `json:"groups"`
	Allows   []string `json:"allows,omitempty"`
	Denies   []string `json:"denies,omitempty"`
}

// GroupResponse права группы
type GroupResponse struct {
	Name        string   `json:"name"`
	Allows      []string `json:"allows"`
	Denies      []string `json:"denies,omitempty"`
	CustomPerms []string `json:"custom_perms,omitempty"`
}

// handleLogin проверяет пароль зарегистрированного позывного; для
// незарегистрированного позывного пароль сверяется с паролем администратора.
// Неудачные попытки считаются по позывному между запросами.
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	session := rs.cfg.Access.NewSession(req.CallSign)
	err := rs.cfg.Access.Identify(session, req.Password)
	if errors.Is(err, access.ErrUserNotFound) {
		err = rs.cfg.Access.AdminLogin(session, req.Password)
	}
	if errors.Is(err, access.ErrAttemptLimitExceeded) {
		rs.log.Warn("⛔ Вход %s через API заблокирован: слишком много попыток", session.Name())
		c.JSON(http.StatusTooManyRequests, LoginResponse{Message: "Слишком много неудачных попыток, повторите позже"})
		return
	}
	if err != nil {
		rs.log.Warn("🔒 Неудачный вход %s через API: %v", session.Name(), err)
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверный позывной или пароль"})
		return
	}

	perms := grantedPerms(rs.cfg.Access, session)
	isAdmin := session.IsAdmin() || rs.cfg.Access.HasPerm(session, access.SetAll)
	token, err := rs.cfg.Issuer.Generate(session.Name(), isAdmin, perms)
	if err != nil {
		rs.log.Error("❌ Ошибка генерации токена: %v", err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Ошибка генерации токена"})
		return
	}

	rs.log.Info("🔑 %s вошёл через API", session.Name())
	c.JSON(http.StatusOK, LoginResponse{
		Success:  true,
		Token:    token,
		Message:  "Успешная авторизация",
		CallSign: session.Name(),
		IsAdmin:  isAdmin,
		Perms:    perms,
	})
}

func grantedPerms(m *access.Manager, session *access.AccessInfo) []string {
	var out []string
	for p := access.Perm(0); p < access.LastPerm; p++ {
		if m.HasPerm(session, p) {
			out = append(out, p.String())
		}
	}
	return out
}

func (rs *RestServer) handleGroups(c *gin.Context) {
	names := rs.cfg.Access.GroupNames()
	groups := make([]GroupResponse, 0, len(names))
	for _, name := range names {
		info, err := rs.cfg.Access.GroupPerms(name)
		if err != nil {
			continue
		}
		groups = append(groups, GroupResponse{
			Name:        name,
			Allows:      info.Allows().Names(),
			Denies:      info.Denies().Names(),
			CustomPerms: info.CustomPerms(),
		})
	}
	ok(c, "Группы", gin.H{"groups": groups, "total": len(groups)})
}

func (rs *RestServer) handleUsers(c *gin.Context) {
	names := rs.cfg.Access.UserNames()
	ok(c, "Зарегистрированные позывные", gin.H{"users": names, "total": len(names)})
}

// handleUser показывает свою запись любому, чужую только при showOthers
func (rs *RestServer) handleUser(c *gin.Context) {
	name := strings.ToUpper(c.Param("name"))
	claims := claimsOf(c)
	if claims == nil || (!strings.EqualFold(claims.CallSign, name) && !hasPerm(claims, access.ShowOthers)) {
		fail(c, http.StatusForbidden, "Недостаточно прав: "+access.ShowOthers.String())
		return
	}

	info, err := rs.cfg.Access.UserInfo(name)
	if errors.Is(err, access.ErrUserNotFound) {
		fail(c, http.StatusNotFound, "Позывной не зарегистрирован")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "Ошибка чтения пользователя")
		return
	}
	ok(c, "Пользователь", UserResponse{
		CallSign: info.Name(),
		Groups:   info.Groups(),
		Allows:   info.Allows().Names(),
		Denies:   info.Denies().Names(),
	})
}

// handleReload перечитывает файлы доступа и обновляет права живых сессий
func (rs *RestServer) handleReload(c *gin.Context) {
	var sessions []*access.AccessInfo
	if rs.cfg.Server != nil {
		sessions = rs.cfg.Server.Sessions()
	}
	if err := rs.cfg.Access.Reload(sessions...); err != nil {
		rs.log.Error("❌ Перезагрузка баз доступа: %v", err)
		fail(c, http.StatusInternalServerError, "Ошибка перезагрузки: "+err.Error())
		return
	}
	ok(c, "Базы доступа перезагружены", gin.H{"users": len(rs.cfg.Access.UserNames())})
}
