package catalog

// standardBrands は標準データとして取り込むブランド名。
var standardBrands = []string{
	"Volkswagen",
	"Chevrolet",
	"Ford",
	"Fiat",
	"Toyota",
	"Honda",
	"Hyundai",
	"Nissan",
	"Renault",
}

// standardModels はブランド名ごとの標準モデル名。
var standardModels = map[string][]string{
	"Volkswagen": {
		"Gol G5 1.0",
		"Gol G5 1.6",
		"Gol G6 1.0",
		"Gol G6 1.6",
		"Golf GTI 2.0 TSI",
		"Polo 1.0 MPI",
		"Polo 1.6 MSI",
		"Polo GTS 1.4 TSI",
		"Virtus 1.0 TSI",
		"Virtus 1.6 MSI",
		"T-Cross 1.0 TSI",
		"T-Cross 1.4 TSI",
		"Nivus 1.0 TSI",
		"Jetta 1.4 TSI",
		"Jetta 2.0 TSI GLI",
		"Taos 1.4 TSI",
		"Saveiro Robust CS",
		"Saveiro Trendline CS",
		"Saveiro Cross CD",
	},
	"Chevrolet": {
		"Onix LT 1.0",
		"Onix LT 1.4",
		"Onix LTZ 1.4",
		"Onix Plus LT 1.0",
		"Onix Plus LTZ 1.0 Turbo",
		"Onix Plus Premier 1.0 Turbo",
		"Cruze LT 1.4 Turbo",
		"Cruze LTZ 1.4 Turbo",
		"Cruze Sport6 LT 1.4 Turbo",
		"Cruze Sport6 LTZ 1.4 Turbo",
		"Tracker 1.0 Turbo LT",
		"Tracker 1.2 Turbo Premier",
		"S10 LT 2.8 Diesel 4x4",
		"S10 LTZ 2.8 Diesel 4x4",
		"S10 High Country 2.8 Diesel 4x4",
		"Montana LS 1.4",
		"Montana Sport 1.4",
		"Spin LT 1.8",
		"Spin LTZ 1.8",
		"Spin Activ 1.8",
	},
	"Ford": {
		"Ka SE 1.0",
		"Ka SE Plus 1.0",
		"Ka SEL 1.5",
		"Ka Sedan SE 1.0",
		"Ka Sedan SE Plus 1.0",
		"Ka Sedan SEL 1.5",
		"EcoSport SE 1.5",
		"EcoSport Freestyle 1.5",
		"EcoSport Storm 2.0 4WD",
		"Ranger XL 2.2 Diesel",
		"Ranger XLS 2.2 Diesel 4x4",
		"Ranger XLT 3.2 Diesel 4x4",
		"Ranger Limited 3.2 Diesel 4x4",
		"Ranger Black 3.2 Diesel 4x4",
		"Bronco Sport Wildtrak 2.0 EcoBoost",
		"Territory SEL 1.5 Turbo",
		"Territory Titanium 1.5 Turbo",
		"Maverick Lariat FX4 2.0 EcoBoost",
	},
	"Fiat": {
		"Mobi Like 1.0",
		"Mobi Drive 1.0",
		"Mobi Drive GSR 1.0",
		"Uno Attractive 1.0",
		"Uno Way 1.0",
		"Uno Way 1.3",
		"Argo 1.0",
		"Argo Drive 1.0",
		"Argo Drive 1.3",
		"Argo Trekking 1.3",
		"Argo HGT 1.8",
		"Cronos 1.3",
		"Cronos Drive 1.3",
		"Cronos Precision 1.8",
		"Strada Endurance CS 1.4",
		"Strada Freedom CS 1.4",
		"Strada Freedom CD 1.4",
		"Strada Volcano CD 1.3",
		"Toro Freedom 1.8",
		"Toro Endurance 1.8",
		"Toro Freedom 2.0 Diesel",
		"Toro Ranch 2.0 Diesel",
		"Toro Ultra 2.0 Diesel",
		"Pulse Drive 1.3",
		"Pulse Audace 1.0 Turbo",
		"Pulse Impetus 1.0 Turbo",
		"Fastback Impetus 1.0 Turbo",
	},
	"Toyota": {
		"Etios X 1.3",
		"Etios X Plus 1.5",
		"Etios XS 1.5",
		"Etios XLS 1.5",
		"Etios X Sedan 1.5",
		"Etios XS Sedan 1.5",
		"Etios XLS Sedan 1.5",
		"Corolla GLi 1.8",
		"Corolla XEi 2.0",
		"Corolla Altis Hybrid",
		"Corolla GR-Sport",
		"Corolla Cross XR 2.0",
		"Corolla Cross XRE 2.0",
		"Corolla Cross XRX Hybrid",
		"Yaris XL Live 1.3",
		"Yaris XL 1.3",
		"Yaris XL Plus Tech 1.3",
		"Yaris XS 1.5",
		"Yaris XLS 1.5",
		"Yaris Sedan XL 1.5",
		"Yaris Sedan XL Plus Tech 1.5",
		"Yaris Sedan XS 1.5",
		"Yaris Sedan XLS 1.5",
		"Hilux SR 2.7",
		"Hilux SRV 2.7 Flex",
		"Hilux SRX 2.8 Diesel 4x4",
		"Hilux SW4 SRX 2.8 Diesel",
		"RAV4 2.5 Hybrid",
	},
	"Honda": {
		"Fit LX 1.5",
		"Fit EX 1.5",
		"Fit EXL 1.5",
		"City DX 1.5",
		"City LX 1.5",
		"City EX 1.5",
		"City EXL 1.5",
		"City Touring 1.5 Turbo",
		"HR-V LX 1.8",
		"HR-V EX 1.8",
		"HR-V EXL 1.8",
		"HR-V Touring 1.5 Turbo",
		"Civic EX 2.0",
		"Civic EXL 2.0",
		"Civic Touring 1.5 Turbo",
		"WR-V EX 1.5",
		"WR-V EXL 1.5",
		"CR-V EXL 1.5 Turbo",
		"CR-V Touring 1.5 Turbo",
		"Accord Touring 2.0 Turbo",
	},
	"Hyundai": {
		"HB20 Sense 1.0",
		"HB20 Vision 1.0",
		"HB20 Vision 1.6",
		"HB20 Evolution 1.0 Turbo",
		"HB20 Sport 1.0 Turbo",
		"HB20S Sense 1.0",
		"HB20S Vision 1.0",
		"HB20S Vision 1.6",
		"HB20S Evolution 1.0 Turbo",
		"HB20S Platinum 1.0 Turbo",
		"Creta Action 1.6",
		"Creta Comfort 1.0 Turbo",
		"Creta Limited 1.0 Turbo",
		"Creta Platinum 1.0 Turbo",
		"Creta Ultimate 2.0",
		"Tucson GLS 1.6 Turbo",
		"Tucson Ultimate 1.6 Turbo",
		"Santa Fe 3.5 V6",
	},
	"Nissan": {
		"March S 1.0",
		"March SV 1.0",
		"March SV 1.6",
		"Versa Sense 1.0",
		"Versa Advance 1.6",
		"Versa Exclusive 1.6",
		"Kicks S 1.6",
		"Kicks Advance 1.6",
		"Kicks Exclusive 1.6",
		"Sentra SV 2.0",
		"Sentra Advance 2.0",
		"Sentra Exclusive 2.0",
		"Frontier S 2.3 Diesel 4x4",
		"Frontier Attack 2.3 Diesel 4x4",
		"Frontier XE 2.3 Diesel 4x4",
		"Frontier LE 2.3 Diesel 4x4",
	},
	"Renault": {
		"Kwid Life 1.0",
		"Kwid Zen 1.0",
		"Kwid Intense 1.0",
		"Kwid Outsider 1.0",
		"Sandero Life 1.0",
		"Sandero Zen 1.0",
		"Sandero Intense 1.6",
		"Sandero RS 2.0",
		"Logan Life 1.0",
		"Logan Zen 1.0",
		"Logan Intense 1.6",
		"Stepway Zen 1.6",
		"Stepway Intense 1.6",
		"Duster Zen 1.6",
		"Duster Intense 1.6",
		"Duster Iconic 1.3 Turbo",
		"Oroch Express 1.6",
		"Oroch Pro 1.6",
		"Oroch Intense 1.6",
		"Oroch Outsider 1.3 Turbo",
		"Captur Life 1.6",
		"Captur Zen 1.6",
		"Captur Intense 1.6",
		"Captur Iconic 1.3 Turbo",
	},
}
