package browser

// Скрипты, исполняемые на странице. Возвращают plain объекты, которые декодируются через JSON.

const describeScript = `(el) => {
  const label = el.labels && el.labels.length ? el.labels[0].innerText : "";
  const aria = el.getAttribute("aria-label") || "";
  const placeholder = el.getAttribute("placeholder") || "";
  const text = (el.innerText || "").trim();
  const name = el.getAttribute("name") || "";
  const type = (el.getAttribute("type") || "").toLowerCase();
  const tag = (el.tagName || "").toLowerCase();
  const required = !!(el.required || el.getAttribute("aria-required") === "true");
  const inForm = !!el.closest("form");
  let checked = null;
  if (type === "checkbox" || type === "radio") checked = !!el.checked;
  else if (el.hasAttribute("aria-checked")) checked = el.getAttribute("aria-checked") === "true";
  else if (el.hasAttribute("aria-pressed")) checked = el.getAttribute("aria-pressed") === "true";
  let value = "";
  if (tag === "select") {
    const opt = el.options[el.selectedIndex];
    value = opt && opt.value ? (opt.label || opt.text || "") : "";
  } else if ("value" in el && type !== "password" && type !== "file") {
    value = String(el.value || "");
  }
  return { label, aria, placeholder, text, name, type, tag, required, inForm, checked, value: value.trim().slice(0, 40) };
}`

const formEvidenceScript = `(errorKeywords) => {
  const toLower = (v) => String(v || "").toLowerCase();
  const isVisible = (el) => {
    if (!el) return false;
    const style = window.getComputedStyle(el);
    if (!style) return false;
    if (style.display === "none" || style.visibility === "hidden") return false;
    const rect = el.getBoundingClientRect();
    return rect.width > 0 && rect.height > 0;
  };
  const isReddish = (el) => {
    const m = String(window.getComputedStyle(el).color || "").match(/rgba?\((\d+),\s*(\d+),\s*(\d+)/i);
    if (!m) return false;
    const r = Number(m[1]), g = Number(m[2]), b = Number(m[3]);
    return r >= 140 && r > g + 25 && r > b + 25;
  };
  const forms = Array.from(document.querySelectorAll("form"));
  const roots = forms.length > 0 ? forms : [document.body];
  const labelFor = new Map();
  document.querySelectorAll("label[for]").forEach((lb) => {
    const k = String(lb.getAttribute("for") || "").trim();
    if (k && !labelFor.has(k)) labelFor.set(k, (lb.innerText || lb.textContent || "").trim());
  });
  const fieldName = (el) => {
    const aria = String(el.getAttribute("aria-label") || "").trim();
    if (aria) return aria;
    const nm = String(el.getAttribute("name") || "").trim();
    if (nm) return nm;
    const id = String(el.id || "").trim();
    if (id && labelFor.get(id)) return labelFor.get(id);
    const wrapped = el.closest("label");
    if (wrapped) {
      const t = String(wrapped.innerText || wrapped.textContent || "").trim();
      if (t) return t.slice(0, 80);
    }
    const ph = String(el.getAttribute("placeholder") || "").trim();
    if (ph) return ph;
    return String(el.id || el.tagName || "").trim();
  };
  const sample = (el) => ({
    type: String(el.getAttribute("type") || el.tagName || "").toLowerCase(),
    name: fieldName(el).slice(0, 120),
    required: Boolean(el.required || el.getAttribute("aria-required") === "true"),
    value_len: "value" in el ? String(el.value || "").trim().length : 0
  });
  const inScope = (el) => roots.some((root) => root && root.contains(el));
  const matchesKeyword = (text) => errorKeywords.some((kw) => toLower(text).includes(kw));

  const invalid = new Set();
  const requiredEmpty = new Set();
  roots.forEach((root) => {
    root.querySelectorAll("input, textarea, select").forEach((el) => {
      if (!isVisible(el)) return;
      if (el.getAttribute("aria-invalid") === "true" || el.matches(":invalid")) invalid.add(el);
      const required = el.required || el.getAttribute("aria-required") === "true";
      if (required && !("value" in el ? String(el.value || "").trim() : "")) requiredEmpty.add(el);
    });
  });

  const selectors = [
    "[role='alert']",
    "[aria-live='assertive']",
    "[class*='error' i]",
    "[class*='invalid' i]",
    "[class*='field-error' i]",
    "[data-testid*='error' i]"
  ];
  const nodes = new Set();
  selectors.forEach((sel) => {
    document.querySelectorAll(sel).forEach((el) => {
      if (isVisible(el) && inScope(el)) nodes.add(el);
    });
  });
  let localHits = 0, redHits = 0;
  const snippets = [];
  nodes.forEach((node) => {
    const text = (node.innerText || node.textContent || "").trim();
    if (!text) return;
    if (matchesKeyword(text)) localHits += 1;
    if (isReddish(node)) redHits += 1;
    if (snippets.length < 6) snippets.push(text.slice(0, 180));
  });

  const submit = Array.from(document.querySelectorAll("button, input[type='submit']"))
    .filter((el) => isVisible(el) && inScope(el))
    .map((el) => ({
      text: String(el.innerText || el.value || el.getAttribute("aria-label") || "").trim().slice(0, 80),
      type: String(el.getAttribute("type") || "").toLowerCase(),
      disabled: Boolean(el.disabled),
      aria_disabled: String(el.getAttribute("aria-disabled") || "").toLowerCase()
    }))
    .filter((it) => {
      const t = it.text.toLowerCase();
      return t.includes("submit") || t.includes("apply") || it.type === "submit";
    })
    .slice(0, 6);

  const uploads = Array.from(document.querySelectorAll("input[type='file']"))
    .filter((el) => inScope(el))
    .map((el) => {
      const parent = el.closest("label, div, section, form") || el.parentElement;
      const text = toLower(parent ? parent.innerText : "");
      return {
        has_replace_text: text.includes("replace"),
        has_uploaded_file_name: text.includes(".pdf") || text.includes(".doc")
      };
    })
    .slice(0, 6);

  return {
    invalid_count: invalid.size,
    required_empty_count: requiredEmpty.size,
    error_container_hits: nodes.size,
    local_keyword_hits: localHits,
    red_text_hits: redHits,
    snippets,
    invalid_samples: Array.from(invalid).slice(0, 6).map(sample),
    required_empty_samples: Array.from(requiredEmpty).slice(0, 6).map(sample),
    submit_candidates: submit,
    file_uploads: uploads
  };
}`

const clickAnswerScript = `({ question, answer }) => {
  const norm = (v) => String(v || "").toLowerCase().replace(/\s+/g, " ").trim();
  const q = norm(question);
  const a = norm(answer);
  if (!q || !a) return { ok: false, reason: "missing_question_or_answer" };
  const isVisible = (el) => {
    if (!el) return false;
    const st = window.getComputedStyle(el);
    if (!st || st.display === "none" || st.visibility === "hidden") return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };
  const textOf = (el) => el ? norm(el.innerText || el.textContent || el.getAttribute("aria-label") || el.value || "") : "";
  const candidates = Array.from(
    document.querySelectorAll("button, [role='button'], label, input[type='radio'], input[type='checkbox']")
  ).filter((el) => {
    if (!isVisible(el)) return false;
    const t = textOf(el);
    return t === a || t.startsWith(a + " ");
  });
  if (!candidates.length) return { ok: false, reason: "answer_candidates_not_found" };
  let best = null;
  let bestScore = -1;
  for (const candidate of candidates) {
    let cur = candidate;
    for (let depth = 0; cur && depth < 8; depth++) {
      if (textOf(cur).includes(q)) {
        if (100 - depth > bestScore) {
          bestScore = 100 - depth;
          best = candidate;
        }
        break;
      }
      cur = cur.parentElement;
    }
  }
  if (!best) return { ok: false, reason: "question_container_not_found" };
  try {
    best.click();
  } catch (_) {
    const input = best.querySelector && best.querySelector("input[type='radio'],input[type='checkbox']");
    if (!input) return { ok: false, reason: "click_failed" };
    input.click();
  }
  return { ok: true, reason: "clicked_in_question_container" };
}`

const answerSelectedScript = `({ question, expected }) => {
  const norm = (v) => String(v || "").toLowerCase().replace(/\s+/g, " ").trim();
  const q = norm(question);
  const want = norm(expected);
  if (!q) return { matched: false, ok: false };
  const isVisible = (el) => {
    if (!el) return false;
    const st = window.getComputedStyle(el);
    if (!st || st.display === "none" || st.visibility === "hidden") return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };
  const textOf = (el) => el ? norm(el.innerText || el.textContent || el.getAttribute("aria-label") || "") : "";
  const scopes = Array.from(document.querySelectorAll("fieldset,[role='group'],[role='radiogroup'],form,section,li,div"))
    .filter((el) => isVisible(el) && textOf(el).includes(q))
    .slice(0, 12);
  const selected = new Set();
  for (const scope of scopes) {
    scope.querySelectorAll("input[type='radio']:checked,input[type='checkbox']:checked").forEach((el) => {
      const label = textOf(el.closest("label")) || textOf(el);
      if (label) selected.add(label);
    });
    scope.querySelectorAll("button,[role='button']").forEach((el) => {
      const pressed = String(el.getAttribute("aria-pressed") || "").toLowerCase();
      const checked = String(el.getAttribute("aria-checked") || "").toLowerCase();
      const cls = String(el.className || "").toLowerCase();
      if (pressed === "true" || checked === "true" || cls.includes("selected") || cls.includes("active") || cls.includes("checked")) {
        const t = textOf(el);
        if (t) selected.add(t);
      }
    });
  }
  const ok = Array.from(selected).some((s) => s === want || s.startsWith(want + " "));
  return { matched: scopes.length > 0, ok };
}`

const manualSignalsScript = `(captchaSelectors) => {
  const isVisible = (el) => {
    if (!el) return false;
    const st = window.getComputedStyle(el);
    if (!st || st.display === "none" || st.visibility === "hidden") return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };
  const hasPassword = Array.from(document.querySelectorAll("input[type='password']")).some(isVisible);
  for (const sel of captchaSelectors) {
    let nodes = [];
    try { nodes = Array.from(document.querySelectorAll(sel)); } catch (_) { continue; }
    if (nodes.some(isVisible)) return { has_password: hasPassword, captcha_visible: true, captcha_selector: sel };
  }
  return { has_password: hasPassword, captcha_visible: false, captcha_selector: "" };
}`
