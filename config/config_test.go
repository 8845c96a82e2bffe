package config

import (
	"testing"

	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/stretchr/testify/assert"
)

func TestSiteRole(t *testing.T) {
	cfg := &Config{
		AdminUsers:     []string{"root@example.com"},
		SiteModerators: []string{"mod@example.com"},
	}

	assert.Equal(t, types.RoleAdmin, cfg.SiteRole("root@example.com", ""))
	assert.Equal(t, types.RoleSiteMod, cfg.SiteRole("mod@example.com", ""))
	// the configured lists override a stored role
	assert.Equal(t, types.RoleAdmin, cfg.SiteRole("root@example.com", types.RoleSiteMod))
	// unlisted accounts keep the role on their record
	assert.Equal(t, types.RoleSiteMod, cfg.SiteRole("other@example.com", types.RoleSiteMod))
	assert.Equal(t, "", cfg.SiteRole("other@example.com", ""))
}
