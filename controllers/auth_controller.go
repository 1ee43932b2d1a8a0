package controller

import (
	"time"

	"adveri/apperr"
	"adveri/config"
	"adveri/middleware"
	"adveri/services"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	Accounts *services.AccountService
}

func NewAuthController(accounts *services.AccountService) *AuthController {
	return &AuthController{Accounts: accounts}
}

// bindJSON parses the request body into v.
func bindJSON(c *fiber.Ctx, v interface{}) error {
	if err := c.BodyParser(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	var input services.RegisterInput
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	user, err := ac.Accounts.Register(c.UserContext(), input)
	if err != nil {
		return err
	}

	message := "Registration successful"
	if !user.CanSignIn() {
		message = "Registration successful. Your sponsor application is awaiting admin approval"
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": message,
		"user":    user,
	})
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input services.LoginInput
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	result, err := ac.Accounts.Login(c.UserContext(), input)
	if err != nil {
		return err
	}

	accessCookie := new(fiber.Cookie)
	accessCookie.Name = middleware.AccessTokenCookie
	accessCookie.Value = result.Token
	accessCookie.Expires = result.ExpiresAt
	accessCookie.HTTPOnly = true
	accessCookie.Secure = config.AppConfig.Environment == "production"
	accessCookie.SameSite = "Lax"
	c.Cookie(accessCookie)

	return c.JSON(result)
}

func (ac *AuthController) Logout(c *fiber.Ctx) error {
	if err := ac.Accounts.Logout(c.UserContext(), middleware.CurrentUser(c)); err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return c.JSON(fiber.Map{"message": "Successfully logged out"})
}

func (ac *AuthController) Me(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return apperr.Unauthorized("authorization required")
	}
	me, err := ac.Accounts.Me(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(me)
}
