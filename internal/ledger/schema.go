package ledger

// Schema creates the credito table. Amounts are NUMERIC(15,2) and the rate is
// NUMERIC(5,2) so values round-trip exactly through shopspring/decimal.
const Schema = `
CREATE TABLE IF NOT EXISTS credito (
    id                BIGSERIAL PRIMARY KEY,
    numero_credito    VARCHAR(50)    NOT NULL,
    numero_nfse       VARCHAR(50)    NOT NULL,
    data_constituicao TIMESTAMPTZ    NOT NULL,
    valor_issqn       NUMERIC(15,2)  NOT NULL,
    tipo_credito      VARCHAR(50)    NOT NULL,
    simples_nacional  BOOLEAN        NOT NULL,
    aliquota          NUMERIC(5,2)   NOT NULL,
    valor_faturado    NUMERIC(15,2)  NOT NULL,
    valor_deducao     NUMERIC(15,2)  NOT NULL,
    base_calculo      NUMERIC(15,2)  NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_credito_numero_credito ON credito (numero_credito);
CREATE INDEX IF NOT EXISTS ix_credito_numero_nfse ON credito (numero_nfse);
`
