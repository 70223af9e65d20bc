package consts

const (
	CHARGE    = 1.60217663e-19 // Elementary charge (C)
	BOLTZMANN = 1.38064852e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15         // 0 degC in Kelvin (K)

	TREF = 298.15             // Rated cell temperature (K)
	SREF = 1000.0             // Rated irradiance (W/m^2)
	QK   = CHARGE / BOLTZMANN // Charge over Boltzmann constant (K/V)
)
