package analytics

// Model names a backend dataset/view the agent answers questions about.
type Model struct {
	ID          string `json:"id" toml:"id"`
	Label       string `json:"label" toml:"label"`
	Description string `json:"description,omitempty" toml:"description"`
}

// Feature is one assistant capability shown next to the chat, with sample prompts.
type Feature struct {
	Icon     string   `json:"icon" toml:"icon"`
	Text     string   `json:"text" toml:"text"`
	Title    string   `json:"title,omitempty" toml:"title"`
	Examples []string `json:"examples,omitempty" toml:"examples"`
}

// Catalog is the full selectable set plus the preselected model.
type Catalog struct {
	Default  string    `json:"default" toml:"default"`
	Models   []Model   `json:"models" toml:"models"`
	Features []Feature `json:"features" toml:"features"`
}

// Seed provides the built-in catalog used when no catalog file is configured.
func Seed() Catalog {
	return Catalog{
		Default: "Analytic_Model_Comercial",
		Models: []Model{
			{ID: "Analytic_Model_Comercial", Label: "Modelo Comercial", Description: "Clientes, ventas, colocado y presupuesto."},
			{ID: "Analytic_Model_Finanzas", Label: "Modelo Finanzas"},
			{ID: "Analytic_Model_Produccion", Label: "Modelo Producción"},
		},
		Features: []Feature{
			{
				Icon:  "🔍",
				Text:  "Buscar información del modelo de datos que selecciones",
				Title: "Ejemplos para consultas de modelos de datos",
				Examples: []string{
					"¿Cuáles son los 3 clientes con mayor cantidad de colocado en el 2025?",
					"Dame las ventas por mes del 2025.",
					"¿Cuáles son los 3 principales clientes con mayor diferencia entre presupuesto y facturado en el año 2025?",
					"Muéstrame el detalle de ventas por producto para el primer trimestre.",
				},
			},
			{
				Icon:  "📊",
				Text:  "Generar gráficas",
				Title: "Ejemplos para gráficas",
				Examples: []string{
					"Genera un gráfico de barras del top 3 de clientes del año actual.",
					"Graficar la tendencia mensual de facturación en 2024.",
					"Graficar el resultado de la última consulta.",
					"Hazme un gráfico de torta con la participación de ventas por región.",
				},
			},
			{
				Icon:  "🔈",
				Text:  "Responder con audios",
				Title: "Ejemplos para audios",
				Examples: []string{
					"Genera un audio con la respuesta anterior.",
					"Genera un audio explicando la tendencia del facturado en TM del 2025.",
					"Hazme un audio con el resumen de los principales clientes del mes.",
					"Dame un audio explicando la gráfica generada.",
				},
			},
			{
				Icon:     "🧠",
				Text:     "Recordar tu conversación",
				Title:    "Memoria de la conversación",
				Examples: []string{"El asistente recuerda el hilo de tu conversación, pero solo durante el día actual."},
			},
		},
	}
}
