package fixture

import "github.com/valyala/fasthttp"

// shellPage is the minimal UI the browser drivers interact with. Element ids
// and classes match what the scenario builders select on.
const shellPage = `<!DOCTYPE html>
<html>
<head><title>uidriver fixture</title></head>
<body>
<div id="app">
  <div class="g-header">
    <a class="g-register-link" id="register-link">Register</a>
    <a class="g-login-link" id="login-link">Log In</a>
    <a class="g-logout-link" id="logout-link" style="display:none">Log Out</a>
    <span class="g-user-text" id="current-user"></span>
  </div>

  <div class="g-dialog" id="login-dialog" style="display:none">
    <form id="login-form">
      <input type="text" id="g-login" name="login">
      <input type="password" id="g-password" name="password">
      <button id="g-login-button" type="submit">Log In</button>
      <div class="g-validation-failed-message" id="login-error"></div>
    </form>
  </div>

  <div class="g-dialog" id="register-dialog" style="display:none">
    <form id="register-form">
      <input type="text" id="g-register-login" name="login">
      <input type="text" id="g-register-email" name="email">
      <input type="text" id="g-register-first-name" name="firstName">
      <input type="text" id="g-register-last-name" name="lastName">
      <input type="password" id="g-register-password" name="password">
      <button id="g-register-button" type="submit">Register</button>
      <div class="g-validation-failed-message" id="register-error"></div>
    </form>
  </div>

  <div class="g-browser" id="browser">
    <div class="g-folder-list" id="folder-list"></div>
    <div class="g-item-list" id="item-list"></div>
    <input type="text" class="g-upload-folder" id="g-upload-folder">
    <input type="file" class="g-file-input" id="g-file-input">
    <button class="g-start-upload" id="g-start-upload">Start Upload</button>
    <div class="g-upload-progress" id="upload-progress"></div>
  </div>
</div>
</body>
</html>
`

func (s *Server) servePage(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("text/html; charset=utf-8")
	s.writeBody(ctx, []byte(shellPage))
}
