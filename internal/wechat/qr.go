package wechat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// signInQR renders the authorization URL as a QR code PNG, for native
// clients that display the code themselves instead of navigating to
// the provider's QR page. Query parameters mirror the sign-in body.
func (h *Handler) signInQR(c *gin.Context) {
	req := signInRequest{
		CallbackURL:        c.Query("callbackURL"),
		ErrorCallbackURL:   c.Query("errorCallbackURL"),
		NewUserCallbackURL: c.Query("newUserCallbackURL"),
	}

	authURL, err := h.authorizeURL(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable_to_create_state"})
		return
	}

	png, err := qrcode.Encode(authURL, qrcode.Medium, qrSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable_to_render_qr"})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
