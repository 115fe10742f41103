package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// param returns a copy of a route parameter. fiber's strings point into the
// request buffer, which is reused once the handler returns.
func param(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Params(name))
}

// query is param for query-string values.
func query(c *fiber.Ctx, name string) string {
	return utils.CopyString(c.Query(name))
}
