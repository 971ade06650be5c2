package main

// General API documentation for swaggo. Regenerate with `swag init`.
//
// @title           inferd API
// @version         1.0
// @description     GPU-aware reverse proxy exposing an OpenAI-compatible API over managed inference backends.
//
// @contact.name   inferd maintainers
// @contact.url    https://github.com/your-org/inferd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
