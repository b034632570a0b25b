package crypto

import "time"

var EncryptKeyWithIterations = encryptKey

func (p *PrincipalAuth) SetClock(now func() time.Time) { p.now = now }
