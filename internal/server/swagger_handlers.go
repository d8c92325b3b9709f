package server

import (
	"fmt"

	"blango/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/swaggo/swag"
	"gopkg.in/yaml.v3"
)

// SwaggerJSON handles GET /api/v1/swagger.json
func (s *Server) SwaggerJSON(c *fiber.Ctx) error {
	doc, err := swag.ReadDoc()
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.SendString(doc)
}

// SwaggerYAML handles GET /api/v1/swagger.yaml
func (s *Server) SwaggerYAML(c *fiber.Ctx) error {
	doc, err := swag.ReadDoc()
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	out, err := jsonToYAML([]byte(doc))
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	c.Set(fiber.HeaderContentType, "application/yaml; charset=utf-8")
	return c.Send(out)
}

// SwaggerUI serves the interactive documentation backed by swagger.json.
func (s *Server) SwaggerUI() fiber.Handler {
	return swagger.New(swagger.Config{URL: "/api/v1/swagger.json"})
}

// jsonToYAML re-encodes a JSON document as block-style YAML, keeping key order.
func jsonToYAML(doc []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(doc, &node); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	blockStyle(&node)
	return yaml.Marshal(&node)
}

func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	for _, child := range n.Content {
		blockStyle(child)
	}
}
