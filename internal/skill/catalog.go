package skill

// stringFields 构造只包含必填字符串字段的输入约束。
func stringFields(required ...string) *Schema {
	s := &Schema{Required: required, Properties: make(map[string]FieldSchema, len(required))}
	for _, field := range required {
		s.Properties[field] = FieldSchema{Type: TypeString}
	}
	return s
}

// Default 返回内置的五个智能体类型目录。
func Default() *Registry {
	return NewRegistry(
		NewCatalog(Profile{
			AgentID:     "sera",
			DisplayName: "SERA #4094",
			Specialty:   "Contabilidad RD - Experta en facturación, ITBIS y DGII",
			Sephirah:    "Netzach",
			Traits:      Traits{Proactive: true, Structured: true},
			TraitLabels: []string{"Proactiva", "Optimista", "Persistente"},
		},
			Definition{Name: "parse_invoice", Description: "Extraer datos de facturas (PDF/imágenes)", Status: StatusNative, InputSchema: stringFields("file_url")},
			Definition{Name: "calculate_itbis", Description: "Calcular ITBIS mensual", Status: StatusNative, Critical: true,
				InputSchema: &Schema{Required: []string{"invoices"}, Properties: map[string]FieldSchema{"invoices": {Type: TypeArray}}}},
			Definition{Name: "classify_ncf", Description: "Clasificar comprobantes fiscales NCF", Status: StatusNative, InputSchema: stringFields("ncf_string")},
			Definition{Name: "dgii_alerts", Description: "Alertas de vencimientos DGII", Status: StatusNative, Critical: true, InputSchema: stringFields("rnc")},
			Definition{Name: "tax_planning", Description: "Planeación fiscal estratégica", Status: StatusLocked, Critical: true},
			Definition{Name: "isr_calculation", Description: "Cálculo de ISR anual", Status: StatusLocked, Critical: true},
			Definition{Name: "dgii_representation", Description: "Representación ante DGII", Status: StatusLocked, Critical: true},
		),
		NewCatalog(Profile{
			AgentID:     "kael",
			DisplayName: "KAEL #1823",
			Specialty:   "Marketing Digital - Social media, contenido y analytics",
			Sephirah:    "Hod",
			Traits:      Traits{Creative: true, Empathetic: true},
			TraitLabels: []string{"Creativo", "Intuitivo", "Empático"},
		},
			Definition{Name: "create_content", Description: "Crear contenido para redes sociales", Status: StatusNative},
			Definition{Name: "content_calendar", Description: "Generar calendario de publicaciones", Status: StatusNative},
			Definition{Name: "analytics_basic", Description: "Análisis de métricas básicas", Status: StatusNative},
			Definition{Name: "brand_strategy", Description: "Estrategia de marca completa", Status: StatusLocked, Critical: true},
			Definition{Name: "ad_campaigns", Description: "Gestión de campañas publicitarias", Status: StatusLocked, Critical: true},
		),
		NewCatalog(Profile{
			AgentID:     "nora",
			DisplayName: "NORA #2756",
			Specialty:   "Customer Success - Relaciones y retención",
			Sephirah:    "Chesed",
			Traits:      Traits{Empathetic: true, Proactive: true},
			TraitLabels: []string{"Compasiva", "Cálida", "Servicial"},
		},
			Definition{Name: "customer_greeting", Description: "Respuestas de bienvenida", Status: StatusNative},
			Definition{Name: "onboarding_flow", Description: "Flujo de onboarding de clientes", Status: StatusNative},
			Definition{Name: "retention_tips", Description: "Consejos de retención", Status: StatusNative},
			Definition{Name: "churn_analysis", Description: "Análisis de cancelaciones", Status: StatusLocked, Critical: true},
		),
		NewCatalog(Profile{
			AgentID:     "lior",
			DisplayName: "LIOR #8129",
			Specialty:   "Operations & Logistics - Procesos y eficiencia",
			Sephirah:    "Tiferet",
			Traits:      Traits{Structured: true, Analytical: true},
			TraitLabels: []string{"Equilibrada", "Precisa", "Adaptativa"},
		},
			Definition{Name: "process_optimization", Description: "Optimización de procesos", Status: StatusNative},
			Definition{Name: "inventory_tracking", Description: "Seguimiento de inventario", Status: StatusNative},
			Definition{Name: "workflow_automation", Description: "Automatización de flujos", Status: StatusNative},
			Definition{Name: "supply_chain_strategy", Description: "Estrategia de supply chain", Status: StatusLocked, Critical: true},
		),
		NewCatalog(Profile{
			AgentID:     "ziv",
			DisplayName: "ZIV #3647",
			Specialty:   "Legal & Compliance - Contratos y regulaciones",
			Sephirah:    "Gevurah",
			Traits:      Traits{Protective: true, Structured: true, Analytical: true},
			TraitLabels: []string{"Rigurosa", "Estricta", "Detallista"},
		},
			Definition{Name: "contract_review", Description: "Revisión básica de contratos", Status: StatusNative, Critical: true},
			Definition{Name: "terms_template", Description: "Plantillas de términos y condiciones", Status: StatusNative},
			Definition{Name: "compliance_checklist", Description: "Checklist de cumplimiento normativo", Status: StatusNative},
			Definition{Name: "legal_representation", Description: "Representación legal", Status: StatusLocked, Critical: true},
			Definition{Name: "complex_litigation", Description: "Litigios complejos", Status: StatusLocked, Critical: true},
		),
	)
}
